package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
	"github.com/tmn/memelet/internal/storage"
	"gorm.io/gorm"
)

// testEnv wires a real SQLite catalog and a scratch library tree for
// service tests.
type testEnv struct {
	t     *testing.T
	db    *gorm.DB
	media *repository.MediaRepository
	tags  *repository.TagRepository
	jobs  *repository.JobRepository
	lib   config.LibraryConfig
	log   *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(root, "test.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	lib := config.LibraryConfig{
		MediaRoot:     filepath.Join(root, "files"),
		AlbumsDir:     "albums",
		SystemDir:     ".memelet",
		ThumbnailsDir: "thumbnails",
		TempDir:       "tmp",
	}
	if err := os.MkdirAll(lib.AlbumsRoot(), 0o755); err != nil {
		t.Fatal(err)
	}

	log := logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})

	return &testEnv{
		t:     t,
		db:    db,
		media: repository.NewMediaRepository(db),
		tags:  repository.NewTagRepository(db),
		jobs:  repository.NewJobRepository(db),
		lib:   lib,
		log:   log,
	}
}

// writeFile drops a file under the library root and returns its absolute path.
func (e *testEnv) writeFile(rel string, data []byte) string {
	e.t.Helper()
	path := filepath.Join(e.lib.MediaRoot, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.t.Fatal(err)
	}
	return path
}

func (e *testEnv) newScanner() *Scanner {
	return NewScanner(e.media, e.lib, e.log)
}

func (e *testEnv) newVerifier() *Verifier {
	return NewVerifier(e.media, e.lib, e.log)
}

func (e *testEnv) newTagService() *TagService {
	return NewTagService(e.media, e.tags, e.lib, e.log)
}

func (e *testEnv) newPipeline(a Analyzer) *Pipeline {
	e.t.Helper()
	store, err := storage.NewStorage(&storage.Config{
		Type:      "local",
		LocalRoot: e.lib.ThumbnailsRoot(),
	})
	if err != nil {
		e.t.Fatalf("NewStorage: %v", err)
	}
	extractor := NewFrameExtractor(e.lib, config.FramesConfig{
		GifMaxFrames:      10,
		VideoSampleFPS:    2,
		VideoMaxFrames:    20,
		PreviewFPS:        10,
		PreviewSeconds:    5,
		ThumbnailMaxWidth: 400,
	}, store, e.log)
	analysis := NewAnalysisService(a, extractor, e.tags, time.Minute, e.log)
	return NewPipeline(e.media, e.jobs, e.newVerifier(), e.newScanner(), analysis, e.newTagService(), e.log)
}

// stubAnalyzer returns a canned response (or error) and records calls.
type stubAnalyzer struct {
	response string
	err      error
	calls    int
}

func (s *stubAnalyzer) Analyze(_ context.Context, _, _ string, _ []string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubAnalyzer) Model() string { return "stub" }
