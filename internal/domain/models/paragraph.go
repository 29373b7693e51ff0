package models

type Paragraph struct {
	ID      int64  `json:"id" db:"id" yaml:"id"`
	Content string `json:"content" db:"content" yaml:"content"`
}
