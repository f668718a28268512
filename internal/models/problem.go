package models

import (
	"strings"
	"time"
)

// Problem is a gradable exercise with its multi-approach rubric.
type Problem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Topic       string    `gorm:"size:128" json:"topic"`
	Rubric      string    `gorm:"type:text;not null" json:"rubric"`
	Editorial   string    `gorm:"type:text" json:"editorial"`
	ExamplesDir string    `gorm:"size:512" json:"examples_dir"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary returns the first line of the description, for listings.
func (p Problem) Summary() string {
	line, _, _ := strings.Cut(strings.TrimSpace(p.Description), "\n")
	return strings.TrimSpace(line)
}
