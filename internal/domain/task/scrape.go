package task

import (
	"fmt"
	"os"

	"payngo/scraper/internal/domain"
)

const ScrapeTaskType = "ScrapeTask"

// ScrapePrinciple lists what a scrape task covers.
type ScrapePrinciple struct {
	Categories []domain.Category `json:"categories"`
}

// ScrapeTask is a unit of work handed out by the task service: a list of categories to scrape.
type ScrapeTask struct {
	ID        string          `json:"_id"`
	Principle ScrapePrinciple `json:"scrapPrinciple"`
}

func (t *ScrapeTask) TaskType() string {
	return ScrapeTaskType
}

func (t *ScrapeTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}

func (t *ScrapeTask) Categories() []domain.Category {
	return t.Principle.Categories
}

// Validate checks that every category can be scraped and stored.
func (t *ScrapeTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no _id")
	}
	for i, c := range t.Principle.Categories {
		if c.Slug == "" || c.Link == "" {
			return fmt.Errorf("category %d of task %s needs categorySlug and categoryLink", i, t.ID)
		}
	}
	return nil
}

// ParseScrapeTask decodes and validates a task document.
func ParseScrapeTask(data []byte) (*ScrapeTask, error) {
	t, err := UnmarshalTask[*ScrapeTask](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scrape task: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("empty scrape task")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadScrapeTask reads a task document from disk.
func LoadScrapeTask(path string) (*ScrapeTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}
	return ParseScrapeTask(data)
}

var _ Task = (*ScrapeTask)(nil)
