package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/storage"
	_ "golang.org/x/image/webp"
)

// Samples holds the image references handed to the AI call for one record,
// plus the temporary workspace that backs them. Thumbnails and preview
// loops are NOT part of a Samples: those are long-lived artifacts.
type Samples struct {
	Refs    []string
	tempDir string
}

// Cleanup removes the temporary frame workspace. Safe to call on every
// exit path, including when no workspace was created.
func (s *Samples) Cleanup() {
	if s == nil || s.tempDir == "" {
		return
	}
	if err := os.RemoveAll(s.tempDir); err != nil {
		logger.Warn("Failed to remove temp frame workspace %s: %v", s.tempDir, err)
	}
	s.tempDir = ""
}

// FrameExtractor produces per-media-type sample frames for analysis and
// maintains the persistent video thumbnail/preview artifacts.
type FrameExtractor struct {
	lib       config.LibraryConfig
	frames    config.FramesConfig
	artifacts storage.ObjectStorage
	logger    *logger.Logger
}

// NewFrameExtractor creates a new frame extractor.
// Parameters:
//   - lib: library layout (media root, reserved subtrees).
//   - frames: sampling constants.
//   - artifacts: storage backend for thumbnails and preview loops.
//   - log: logger instance.
//
// Returns:
//   - *FrameExtractor: initialized extractor.
func NewFrameExtractor(lib config.LibraryConfig, frames config.FramesConfig, artifacts storage.ObjectStorage, log *logger.Logger) *FrameExtractor {
	return &FrameExtractor{
		lib:       lib,
		frames:    frames,
		artifacts: artifacts,
		logger:    log,
	}
}

// Extract returns sample references for a record, dispatched on its media
// type. Callers must invoke Samples.Cleanup when the AI call has finished,
// whether it succeeded or not.
// Parameters:
//   - ctx: context bounding any decode subprocess.
//   - rec: media record to sample.
//   - items: album items in display order; only used for album records.
//
// Returns:
//   - *Samples: ordered sample references.
//   - error: wraps ErrExtraction on any decode or sampling failure.
func (e *FrameExtractor) Extract(ctx context.Context, rec *domain.MediaRecord, items []domain.AlbumItem) (*Samples, error) {
	switch rec.MediaType {
	case domain.MediaTypeImage:
		return e.extractImage(rec)
	case domain.MediaTypeGif:
		return e.extractGif(rec)
	case domain.MediaTypeVideo:
		return e.extractVideo(ctx, rec)
	case domain.MediaTypeAlbum:
		return e.extractAlbum(rec, items)
	default:
		return nil, fmt.Errorf("%w: unknown media type %q", ErrExtraction, rec.MediaType)
	}
}

// extractImage passes the file through untouched as a single reference.
func (e *FrameExtractor) extractImage(rec *domain.MediaRecord) (*Samples, error) {
	ref, err := fileDataURL(rec.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return &Samples{Refs: []string{ref}}, nil
}

// extractAlbum passes every item through in display order.
func (e *FrameExtractor) extractAlbum(rec *domain.MediaRecord, items []domain.AlbumItem) (*Samples, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: album %s has no items", ErrExtraction, rec.ID)
	}
	refs := make([]string, 0, len(items))
	for _, item := range items {
		ref, err := fileDataURL(item.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: album item %d: %v", ErrExtraction, item.DisplayOrder, err)
		}
		refs = append(refs, ref)
	}
	return &Samples{Refs: refs}, nil
}

// extractGif decodes the animation and samples at most GifMaxFrames
// frames, evenly spaced across the whole run and always including frame 0.
// Sampled frames are re-encoded as stills into the record's temporary
// workspace.
func (e *FrameExtractor) extractGif(rec *domain.MediaRecord) (*Samples, error) {
	f, err := os.Open(rec.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open gif: %v", ErrExtraction, err)
	}
	g, err := gif.DecodeAll(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: decode gif: %v", ErrExtraction, err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("%w: gif has no frames", ErrExtraction)
	}

	indices := sampleIndices(len(g.Image), e.frames.GifMaxFrames)
	wanted := make(map[int]bool, len(indices))
	for _, idx := range indices {
		wanted[idx] = true
	}

	samples, err := e.newWorkspace(rec.ID)
	if err != nil {
		return nil, err
	}

	// GIF frames may cover only a sub-rectangle; composite each one over
	// the running canvas before sampling.
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)

	frameNo := 0
	for i, frame := range g.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		if !wanted[i] {
			continue
		}

		still := imaging.Clone(canvas)
		framePath := filepath.Join(samples.tempDir, fmt.Sprintf("frame_%03d.jpg", frameNo))
		frameNo++
		if err := imaging.Save(still, framePath, imaging.JPEGQuality(85)); err != nil {
			samples.Cleanup()
			return nil, fmt.Errorf("%w: encode gif frame %d: %v", ErrExtraction, i, err)
		}

		ref, err := fileDataURL(framePath)
		if err != nil {
			samples.Cleanup()
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		samples.Refs = append(samples.Refs, ref)
	}

	return samples, nil
}

// extractVideo samples analysis frames at the configured rate via ffmpeg
// and regenerates the persistent thumbnail/preview artifacts when missing.
func (e *FrameExtractor) extractVideo(ctx context.Context, rec *domain.MediaRecord) (*Samples, error) {
	samples, err := e.newWorkspace(rec.ID)
	if err != nil {
		return nil, err
	}

	pattern := filepath.Join(samples.tempDir, "frame_%03d.jpg")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", rec.Path,
		"-vf", fmt.Sprintf("fps=%d", e.frames.VideoSampleFPS),
		"-frames:v", strconv.Itoa(e.frames.VideoMaxFrames),
		"-q:v", "3",
		pattern,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		samples.Cleanup()
		return nil, fmt.Errorf("%w: ffmpeg frame sampling: %v: %s", ErrExtraction, err, tail(stderr.String()))
	}

	framePaths, err := sortedFrames(samples.tempDir, "frame_")
	if err != nil {
		samples.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if len(framePaths) == 0 {
		samples.Cleanup()
		return nil, fmt.Errorf("%w: ffmpeg produced no frames for %s", ErrExtraction, rec.Path)
	}

	if err := e.ensureVideoArtifacts(ctx, rec, framePaths[0], samples.tempDir); err != nil {
		samples.Cleanup()
		return nil, err
	}

	for _, p := range framePaths {
		ref, err := fileDataURL(p)
		if err != nil {
			samples.Cleanup()
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		samples.Refs = append(samples.Refs, ref)
	}

	return samples, nil
}

// ensureVideoArtifacts regenerates the long-lived thumbnail and preview
// loop for a video when either is missing. Both are derived
// deterministically from the source file, so a wiped thumbnails tree
// rebuilds itself on the next processing pass.
func (e *FrameExtractor) ensureVideoArtifacts(ctx context.Context, rec *domain.MediaRecord, firstFrame, workDir string) error {
	thumbKey := rec.ID + "/thumb.jpg"
	previewKey := rec.ID + "/preview.gif"

	hasThumb, err := e.artifacts.Exists(ctx, thumbKey)
	if err != nil {
		return fmt.Errorf("%w: check thumbnail: %v", ErrExtraction, err)
	}
	if !hasThumb {
		if err := e.writeThumbnail(ctx, thumbKey, firstFrame); err != nil {
			return err
		}
	}

	hasPreview, err := e.artifacts.Exists(ctx, previewKey)
	if err != nil {
		return fmt.Errorf("%w: check preview: %v", ErrExtraction, err)
	}
	if !hasPreview {
		if err := e.writePreview(ctx, previewKey, rec.Path, workDir); err != nil {
			return err
		}
	}

	return nil
}

// writeThumbnail persists the first sampled frame, scaled down when wider
// than the configured maximum.
func (e *FrameExtractor) writeThumbnail(ctx context.Context, key, framePath string) error {
	img, err := imaging.Open(framePath)
	if err != nil {
		return fmt.Errorf("%w: open thumbnail frame: %v", ErrExtraction, err)
	}
	if maxW := e.frames.ThumbnailMaxWidth; maxW > 0 && img.Bounds().Dx() > maxW {
		img = imaging.Resize(img, maxW, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("%w: encode thumbnail: %v", ErrExtraction, err)
	}
	if err := e.artifacts.Upload(ctx, key, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		return fmt.Errorf("%w: store thumbnail: %v", ErrExtraction, err)
	}
	return nil
}

// writePreview builds the short high-rate preview loop with ffmpeg and
// persists it.
func (e *FrameExtractor) writePreview(ctx context.Context, key, videoPath, workDir string) error {
	out := filepath.Join(workDir, "preview.gif")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-t", strconv.Itoa(e.frames.PreviewSeconds),
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d,scale='min(%d,iw)':-2", e.frames.PreviewFPS, e.frames.ThumbnailMaxWidth),
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: ffmpeg preview: %v: %s", ErrExtraction, err, tail(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return fmt.Errorf("%w: read preview: %v", ErrExtraction, err)
	}
	if err := e.artifacts.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "image/gif"); err != nil {
		return fmt.Errorf("%w: store preview: %v", ErrExtraction, err)
	}
	return nil
}

// newWorkspace creates the per-record temporary frame directory. The name
// is derived from the record identity, which is the mutual-exclusion
// boundary that keeps concurrent single-item operations from colliding.
func (e *FrameExtractor) newWorkspace(recordID string) (*Samples, error) {
	dir := filepath.Join(e.lib.TempRoot(), recordID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create temp workspace: %v", ErrExtraction, err)
	}
	return &Samples{tempDir: dir}, nil
}

// sampleIndices selects up to max frame indices evenly spaced across
// [0, total), always including 0. With total <= max every frame is chosen.
func sampleIndices(total, max int) []int {
	if max <= 0 || total <= max {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	indices := make([]int, max)
	for i := 0; i < max; i++ {
		indices[i] = i * total / max
	}
	return indices
}

// sortedFrames lists the frame files ffmpeg wrote, in sequence order.
func sortedFrames(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// fileDataURL reads a file and returns it as a base64 data: URL.
func fileDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read sample %s: %v", path, err)
	}
	mime := mimeByExt(path)
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

// mimeByExt maps a file extension to its MIME type.
func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// tail keeps error output readable by returning only the end of a long
// ffmpeg stderr dump.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const keep = 300
	if len(s) <= keep {
		return s
	}
	return "..." + s[len(s)-keep:]
}
