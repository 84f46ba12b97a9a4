package service

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/domain"
)

func TestSampleIndices(t *testing.T) {
	tests := []struct {
		name  string
		total int
		max   int
		want  []int
	}{
		{
			name:  "more frames than budget",
			total: 37,
			max:   10,
			want:  []int{0, 3, 7, 11, 14, 18, 22, 25, 29, 33},
		},
		{
			name:  "fewer frames than budget",
			total: 4,
			max:   10,
			want:  []int{0, 1, 2, 3},
		},
		{
			name:  "exactly the budget",
			total: 10,
			max:   10,
			want:  []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
		{
			name:  "no frames",
			total: 0,
			max:   10,
			want:  []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sampleIndices(tt.total, tt.max)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sampleIndices(%d, %d) = %v, want %v", tt.total, tt.max, got, tt.want)
			}
		})
	}
}

// TestSampleIndicesAlwaysStartsAtZero covers the invariant independent of
// the exact spacing: the first frame is always part of the sample.
func TestSampleIndicesAlwaysStartsAtZero(t *testing.T) {
	for total := 1; total <= 100; total++ {
		got := sampleIndices(total, 10)
		if got[0] != 0 {
			t.Fatalf("total=%d: first index %d, want 0", total, got[0])
		}
		if len(got) > 10 {
			t.Fatalf("total=%d: %d indices, want at most 10", total, len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i] <= got[i-1] {
				t.Fatalf("total=%d: indices not strictly increasing: %v", total, got)
			}
		}
		if got[len(got)-1] >= total {
			t.Fatalf("total=%d: index out of range: %v", total, got)
		}
	}
}

func TestExtractImagePassthrough(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("pepe.png", []byte("png bytes"))

	extractor := NewFrameExtractor(env.lib, config.FramesConfig{GifMaxFrames: 10}, nil, env.log)
	samples, err := extractor.Extract(t.Context(), &domain.MediaRecord{
		ID:        "rec-1",
		Path:      path,
		MediaType: domain.MediaTypeImage,
	}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer samples.Cleanup()

	if len(samples.Refs) != 1 {
		t.Fatalf("got %d refs, want 1", len(samples.Refs))
	}
	if !strings.HasPrefix(samples.Refs[0], "data:image/png;base64,") {
		t.Errorf("unexpected ref prefix: %.40s", samples.Refs[0])
	}
}

func TestExtractGifSamplesFrames(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.lib.MediaRoot, "loop.gif")
	writeTestGif(t, path, 7)

	extractor := NewFrameExtractor(env.lib, config.FramesConfig{GifMaxFrames: 3}, nil, env.log)
	samples, err := extractor.Extract(t.Context(), &domain.MediaRecord{
		ID:        "rec-gif",
		Path:      path,
		MediaType: domain.MediaTypeGif,
	}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	defer samples.Cleanup()

	if len(samples.Refs) != 3 {
		t.Fatalf("got %d refs, want 3", len(samples.Refs))
	}
	for i, ref := range samples.Refs {
		if !strings.HasPrefix(ref, "data:image/jpeg;base64,") {
			t.Errorf("ref %d: unexpected prefix %.40s", i, ref)
		}
	}
}

func TestExtractAlbumRequiresItems(t *testing.T) {
	env := newTestEnv(t)
	extractor := NewFrameExtractor(env.lib, config.FramesConfig{}, nil, env.log)

	_, err := extractor.Extract(t.Context(), &domain.MediaRecord{
		ID:        "rec-album",
		MediaType: domain.MediaTypeAlbum,
	}, nil)
	if err == nil {
		t.Fatal("expected error for empty album")
	}
}

func TestCleanupRemovesWorkspace(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.lib.MediaRoot, "loop.gif")
	writeTestGif(t, path, 5)

	extractor := NewFrameExtractor(env.lib, config.FramesConfig{GifMaxFrames: 2}, nil, env.log)
	samples, err := extractor.Extract(t.Context(), &domain.MediaRecord{
		ID:        "rec-cleanup",
		Path:      path,
		MediaType: domain.MediaTypeGif,
	}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	workDir := filepath.Join(env.lib.TempRoot(), "rec-cleanup")
	if _, err := os.Stat(workDir); err != nil {
		t.Fatalf("workspace missing before cleanup: %v", err)
	}
	samples.Cleanup()
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Errorf("workspace still present after cleanup")
	}
	samples.Cleanup() // second call is a no-op
}

// writeTestGif encodes a small animation with the given frame count.
func writeTestGif(t *testing.T, path string, frames int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	anim := &gif.GIF{Config: image.Config{Width: 8, Height: 8}}
	palette := []color.Color{color.Black, color.White}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 8, 8), palette)
		frame.SetColorIndex(i%8, i%8, 1)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 5)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, anim); err != nil {
		t.Fatal(err)
	}
}
