package file

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qrave1/TypeRace/internal/domain"
	"github.com/qrave1/TypeRace/internal/domain/models"
)

type paragraphsFile struct {
	Paragraphs []models.Paragraph `yaml:"paragraphs"`
}

type paragraphProvider struct {
	paragraphs []models.Paragraph
}

// NewParagraphProvider читает тексты из YAML файла
func NewParagraphProvider(path string) (domain.ContentProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read paragraphs file: %w", err)
	}

	return ParseParagraphs(data)
}

// ParseParagraphs разбирает YAML, пустые тексты пропускаются
func ParseParagraphs(data []byte) (domain.ContentProvider, error) {
	var f paragraphsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal paragraphs: %w", err)
	}

	p := &paragraphProvider{}

	for i, paragraph := range f.Paragraphs {
		if strings.TrimSpace(paragraph.Content) == "" {
			continue
		}

		if paragraph.ID == 0 {
			paragraph.ID = int64(i + 1)
		}

		p.paragraphs = append(p.paragraphs, paragraph)
	}

	if len(p.paragraphs) == 0 {
		return nil, errors.New("paragraphs file has no content")
	}

	return p, nil
}

func (p *paragraphProvider) GetRandomParagraph(ctx context.Context) (*models.Paragraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paragraph := p.paragraphs[rand.IntN(len(p.paragraphs))]

	return &paragraph, nil
}
