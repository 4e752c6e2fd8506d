package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gradewise/gradewise-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Assignment{},
		&models.Submission{},
		&models.AnswerKey{},
		&models.AnswerKeyQuestion{},
		&models.GradingTask{},
		&models.GradeResult{},
		&models.QuestionResult{},
		&models.GradeHistory{},
	))

	return db
}
