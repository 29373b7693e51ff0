package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

type paragraphRepo struct {
	db *sqlx.DB
}

// NewParagraphRepo - источник текстов из таблицы paragraphs
func NewParagraphRepo(db *sqlx.DB) domain.ContentProvider {
	return &paragraphRepo{db: db}
}

func (r *paragraphRepo) GetRandomParagraph(ctx context.Context) (*models.Paragraph, error) {
	var p models.Paragraph

	err := r.db.GetContext(ctx, &p, "SELECT id, content FROM paragraphs ORDER BY random() LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("paragraphs table is empty: %w", domain.ErrContentUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("select random paragraph: %w", err)
	}

	return &p, nil
}
