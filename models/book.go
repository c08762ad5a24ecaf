// Package models defines data structures for the scraper.
package models

import "time"

// Book represents one book parsed from a tululu detail page.
type Book struct {
	ID          int       `csv:"id" json:"id" yaml:"id"`
	Title       string    `csv:"title" json:"title" yaml:"title"`
	Author      string    `csv:"author" json:"author" yaml:"author"`
	Comments    []string  `csv:"comments" json:"comments" yaml:"comments"`
	Genres      []string  `csv:"genres" json:"genres" yaml:"genres"`
	ImageSource string    `csv:"-" json:"image_source" yaml:"image_source"`
	ImageURL    string    `csv:"image_url" json:"image_url" yaml:"image_url"`
	TextPath    string    `csv:"text_path" json:"text_path,omitempty" yaml:"text_path,omitempty"`
	ImagePath   string    `csv:"image_path" json:"image_path,omitempty" yaml:"image_path,omitempty"`
	RunID       string    `csv:"run_id" json:"run_id" yaml:"run_id"`
	ScrapedAt   time.Time `csv:"scraped_at" json:"scraped_at" yaml:"scraped_at"`
}

// RunResult holds the overall result of walking an identifier range.
type RunResult struct {
	RunID         string
	StartID       int
	EndID         int
	StartTime     time.Time
	EndTime       time.Time
	Processed     int
	Saved         int
	Absent        int
	NetworkFaults int
	ParseFaults   int
	Failed        int
	Backoffs      int
	ErrorsByType  map[string]int
	Interrupted   bool
}
