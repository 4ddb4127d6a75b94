package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileSink writes per-date JSON artifacts under an output directory:
// articles under articles/, run metadata under metadata/.
type FileSink struct {
	articlesDir string
	metadataDir string
}

// NewFileSink creates the sink and bootstraps its directory layout.
func NewFileSink(outputDir string) (*FileSink, error) {
	s := &FileSink{
		articlesDir: filepath.Join(outputDir, "articles"),
		metadataDir: filepath.Join(outputDir, "metadata"),
	}
	for _, dir := range []string{s.articlesDir, s.metadataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return s, nil
}

// SaveDaily writes the day's article set and its run metadata.
func (s *FileSink) SaveDaily(daily *DailyArticles) error {
	day, err := time.Parse(DateLayout, daily.Date)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", daily.Date, err)
	}
	compact := CompactDate(day)

	articlesPath := filepath.Join(s.articlesDir, fmt.Sprintf("articles_%s.json", compact))
	if err := writeJSON(articlesPath, daily); err != nil {
		return err
	}

	if daily.Metadata != nil {
		metadataPath := filepath.Join(s.metadataDir, fmt.Sprintf("metadata_%s.json", compact))
		if err := writeJSON(metadataPath, daily.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// ArticlesPath returns the artifact path for a date, mainly for tests
// and tooling.
func (s *FileSink) ArticlesPath(day time.Time) string {
	return filepath.Join(s.articlesDir, fmt.Sprintf("articles_%s.json", CompactDate(day)))
}

// MetadataPath returns the metadata artifact path for a date.
func (s *FileSink) MetadataPath(day time.Time) string {
	return filepath.Join(s.metadataDir, fmt.Sprintf("metadata_%s.json", CompactDate(day)))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
