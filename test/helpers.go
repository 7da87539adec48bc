package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/model"
	"github.com/mickamy/plandiff/internal/parser"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves the repository root (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// LoadDocument parses a plan fixture relative to the repository's samples dir.
func LoadDocument(t *testing.T, rel string) *model.Document {
	t.Helper()
	f, err := os.Open(filepath.Join(RootPath(t), "samples", rel))
	if err != nil {
		t.Fatalf("open plan: %v", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := parser.ParseJSON(f)
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return doc
}

// LoadExtractor parses a fixture and builds a metric extractor over it.
func LoadExtractor(t *testing.T, rel string) (*model.Document, *metrics.Extractor) {
	t.Helper()
	doc := LoadDocument(t, rel)
	x, err := metrics.NewExtractor(doc)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return doc, x
}
