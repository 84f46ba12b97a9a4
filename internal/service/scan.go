package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/hash"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
)

// Scanner discovers media files under the library root and registers
// them as catalog records. It must run after verification: a moved file
// that verification has already re-pointed is not a new file, and
// without that ordering a rename would surface here as a duplicate.
type Scanner struct {
	media  *repository.MediaRepository
	lib    config.LibraryConfig
	logger *logger.Logger
}

// NewScanner creates a new directory scanner.
func NewScanner(media *repository.MediaRepository, lib config.LibraryConfig, log *logger.Logger) *Scanner {
	return &Scanner{media: media, lib: lib, logger: log}
}

// ScanStats counts the outcomes of one scan pass.
type ScanStats struct {
	NewFiles   int `json:"new_files"`
	NewAlbums  int `json:"new_albums"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Scan walks the media root and registers every uncataloged file, then
// ingests new album folders. Files with duplicate content are recorded
// as error records pointing at the original, so the operator sees them
// in the catalog instead of having them silently resurface on every
// scan.
// Parameters:
//   - ctx: context for cancellation.
//
// Returns:
//   - *ScanStats: new/duplicate/skipped counts.
//   - error: non-nil on walk or store failure.
func (s *Scanner) Scan(ctx context.Context) (*ScanStats, error) {
	stats := &ScanStats{}

	// WalkDir hands back cleaned joined paths; clean the reserved roots
	// so the comparisons hold for relative media_root values too.
	systemRoot := filepath.Clean(s.lib.SystemRoot())
	albumsRoot := filepath.Clean(s.lib.AlbumsRoot())

	err := filepath.WalkDir(s.lib.MediaRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.WithField("path", path).WithError(err).Warn("Skipping unreadable entry")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if filepath.Clean(path) == systemRoot || filepath.Clean(path) == albumsRoot || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		mediaType, ok := classify(path)
		if !ok {
			stats.Skipped++
			return nil
		}
		return s.registerFile(ctx, path, mediaType, stats)
	})
	if err != nil {
		return stats, err
	}

	if err := s.scanAlbums(ctx, albumsRoot, stats); err != nil {
		return stats, err
	}

	logger.With(logger.Fields{
		"new_files":  stats.NewFiles,
		"new_albums": stats.NewAlbums,
		"duplicates": stats.Duplicates,
		"skipped":    stats.Skipped,
	}).Info(ctx, "Library scan completed")

	return stats, nil
}

// registerFile catalogs a single file that is not yet known by path.
func (s *Scanner) registerFile(ctx context.Context, path string, mediaType domain.MediaType, stats *ScanStats) error {
	existing, err := s.media.GetByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to look up path: %w", err)
	}
	if existing != nil {
		return nil
	}

	digest, err := hash.File(path)
	if err != nil {
		// Unreadable now may be readable later; leave it uncataloged.
		s.logger.WithField("path", path).WithError(err).Warn("Skipping unhashable file")
		stats.Skipped++
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		stats.Skipped++
		return nil
	}

	rec := &domain.MediaRecord{
		ID:          uuid.New().String(),
		Path:        path,
		MediaType:   mediaType,
		Status:      domain.MediaStatusNew,
		ContentHash: digest,
		Size:        info.Size(),
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	original, err := s.media.GetByHash(ctx, digest)
	if err != nil {
		return fmt.Errorf("failed to look up hash: %w", err)
	}
	if original != nil {
		rec.Status = domain.MediaStatusError
		rec.ErrorMessage = fmt.Sprintf("duplicate content: identical to record %s", original.ID)
		if err := s.media.Create(ctx, rec); err != nil {
			return fmt.Errorf("failed to create duplicate record: %w", err)
		}
		s.logger.WithFields(logger.Fields{
			"path":     path,
			"original": original.ID,
		}).Warn("Registered duplicate file")
		stats.Duplicates++
		return nil
	}

	if err := s.media.Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	stats.NewFiles++
	return nil
}

// scanAlbums ingests each uncataloged subdirectory of the albums root as
// one album record with dense, name-ordered item positions.
func (s *Scanner) scanAlbums(ctx context.Context, albumsRoot string, stats *ScanStats) error {
	entries, err := os.ReadDir(albumsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read albums root: %w", err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(albumsRoot, entry.Name())

		existing, err := s.media.GetByPath(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to look up album path: %w", err)
		}
		if existing != nil {
			continue
		}

		if err := s.registerAlbum(ctx, dir, entry.Name(), stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) registerAlbum(ctx context.Context, dir, title string, stats *ScanStats) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.WithField("path", dir).WithError(err).Warn("Skipping unreadable album folder")
		stats.Skipped++
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := classify(entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		stats.Skipped++
		return nil
	}
	sort.Strings(names)

	rec := &domain.MediaRecord{
		ID:        uuid.New().String(),
		Path:      dir,
		MediaType: domain.MediaTypeAlbum,
		Status:    domain.MediaStatusNew,
		Title:     title,
	}

	var totalSize int64
	items := make([]domain.AlbumItem, 0, len(names))
	for order, name := range names {
		itemPath := filepath.Join(dir, name)
		digest, err := hash.File(itemPath)
		if err != nil {
			s.logger.WithField("path", itemPath).WithError(err).Warn("Skipping album with unhashable item")
			stats.Skipped++
			return nil
		}
		info, err := os.Stat(itemPath)
		if err != nil {
			stats.Skipped++
			return nil
		}
		totalSize += info.Size()
		items = append(items, domain.AlbumItem{
			ID:           uuid.New().String(),
			AlbumID:      rec.ID,
			DisplayOrder: order + 1,
			Path:         itemPath,
			ContentHash:  digest,
			Size:         info.Size(),
		})
	}
	rec.Size = totalSize

	if err := s.media.CreateAlbum(ctx, rec, items); err != nil {
		return fmt.Errorf("failed to create album: %w", err)
	}
	s.logger.WithFields(logger.Fields{
		logger.FieldMediaID: rec.ID,
		"title":             title,
		"items":             len(items),
	}).Info("Registered album")
	stats.NewAlbums++
	return nil
}

// classify maps a filename to its media type by extension.
func classify(path string) (domain.MediaType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".bmp":
		return domain.MediaTypeImage, true
	case ".gif":
		return domain.MediaTypeGif, true
	case ".mp4", ".webm", ".mov", ".mkv", ".avi":
		return domain.MediaTypeVideo, true
	default:
		return "", false
	}
}
