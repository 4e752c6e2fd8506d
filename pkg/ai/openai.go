package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradewise",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of generative-model requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradewise",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed generative-model requests",
	}, []string{"model", "operation"})
)

// OpenAIConfig defines configuration options for the OpenAI-backed service.
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float32
	Logger         zerolog.Logger
}

// OpenAIService implements Service against the OpenAI chat and embeddings APIs.
type OpenAIService struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIService builds a new service using the provided configuration.
func NewOpenAIService(cfg OpenAIConfig) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}

	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	tracer := otel.Tracer("github.com/gradewise/gradewise-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIService{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Complete sends the prompt to the chat model and returns the raw response text.
func (s *OpenAIService) Complete(parent context.Context, prompt string) (string, error) {
	ctx, span := s.tracer.Start(parent, "openai.complete", trace.WithAttributes(
		attribute.String("model", s.cfg.ChatModel),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       s.cfg.ChatModel,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(s.cfg.ChatModel, "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.ChatModel, "complete").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai complete: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(s.cfg.ChatModel, "complete").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns the embedding vector for the supplied text.
func (s *OpenAIService) Embed(parent context.Context, text string) ([]float32, error) {
	ctx, span := s.tracer.Start(parent, "openai.embed", trace.WithAttributes(
		attribute.String("model", s.cfg.EmbeddingModel),
	))
	defer span.End()

	start := time.Now()
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.cfg.EmbeddingModel),
		Input: []string{text},
	})
	aiDuration.WithLabelValues(s.cfg.EmbeddingModel, "embed").Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.EmbeddingModel, "embed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	if len(resp.Data) == 0 {
		err := fmt.Errorf("no embedding data returned from openai")
		aiFailures.WithLabelValues(s.cfg.EmbeddingModel, "embed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return resp.Data[0].Embedding, nil
}

// Available reports whether the service holds a usable client.
func (s *OpenAIService) Available(_ context.Context) bool {
	return s != nil && s.client != nil
}
