package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"caption-crawler/pkg/models"
)

// fileSink writes each caption as a JSON document under the output directory
// and the batch summary alongside them.
type fileSink struct {
	dir string
}

func newFileSink(dir string) (*fileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &fileSink{dir: dir}, nil
}

func (s *fileSink) Write(_ context.Context, content models.Content) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal caption %s: %w", content.ItemID, err)
	}
	path := filepath.Join(s.dir, safeFileName(content.ItemID)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write caption file %s: %w", path, err)
	}
	return nil
}

func (s *fileSink) WriteSummary(_ context.Context, result models.BatchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch summary: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("summary_%s.json", result.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file %s: %w", path, err)
	}
	return nil
}

// safeFileName replaces path separators and other awkward characters so an
// item ID can be used directly as a file name.
func safeFileName(id string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	name := repl.Replace(id)
	if name == "" {
		name = "item"
	}
	return name
}
