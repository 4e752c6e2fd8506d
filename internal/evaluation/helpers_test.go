package evaluation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// stubService scripts the generative collaborator. When respond is set it
// decides per prompt; otherwise response/err are returned verbatim.
type stubService struct {
	response  string
	err       error
	available bool
	respond   func(prompt string) (string, error)
	calls     int
}

func (s *stubService) Complete(_ context.Context, prompt string) (string, error) {
	s.calls++
	if s.respond != nil {
		return s.respond(prompt)
	}
	return s.response, s.err
}

func (s *stubService) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("stub service has no embeddings")
}

func (s *stubService) Available(context.Context) bool {
	return s.available
}
