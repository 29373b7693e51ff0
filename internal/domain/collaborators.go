package domain

import (
	"context"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

// ContentProvider отдает случайный текст для гонки
type ContentProvider interface {
	GetRandomParagraph(ctx context.Context) (*models.Paragraph, error)
}

// StatsRecorder сохраняет итоги завершенной гонки
type StatsRecorder interface {
	RecordRace(ctx context.Context, results []models.RaceResult) error
}
