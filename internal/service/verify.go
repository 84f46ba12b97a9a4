package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/hash"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
)

// Verifier confirms that catalog records still point at real files,
// computes missing content hashes, and relocates records whose files moved
// inside the media root. It runs before any new-file scan so a renamed
// file is recognized as an existing record instead of re-ingested as a
// duplicate.
type Verifier struct {
	media  *repository.MediaRepository
	lib    config.LibraryConfig
	logger *logger.Logger
}

// NewVerifier creates a new identity verifier.
func NewVerifier(media *repository.MediaRepository, lib config.LibraryConfig, log *logger.Logger) *Verifier {
	return &Verifier{media: media, lib: lib, logger: log}
}

// VerifyStats counts per-record outcomes of a verification pass.
type VerifyStats struct {
	OK        int `json:"ok"`
	Hashed    int `json:"hashed"`
	Relocated int `json:"relocated"`
	Errored   int `json:"errored"`
}

// VerifyAll verifies every catalog record.
func (v *Verifier) VerifyAll(ctx context.Context) (*VerifyStats, error) {
	recs, err := v.media.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return v.Verify(ctx, recs)
}

// Verify verifies the given records and reports outcome counts.
// Parameters:
//   - ctx: context for cancellation.
//   - recs: records to verify.
//
// Returns:
//   - *VerifyStats: ok/hashed/relocated/errored counts.
//   - error: non-nil only for store failures; per-record problems are
//     persisted as status=error, never raised.
func (v *Verifier) Verify(ctx context.Context, recs []domain.MediaRecord) (*VerifyStats, error) {
	stats := &VerifyStats{}
	for i := range recs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if err := v.verifyRecord(ctx, &recs[i], stats); err != nil {
			return stats, err
		}
	}

	logger.With(logger.Fields{
		"ok":        stats.OK,
		"hashed":    stats.Hashed,
		"relocated": stats.Relocated,
		"errored":   stats.Errored,
	}).Info(ctx, "Verification pass completed")

	return stats, nil
}

// CheckRecord verifies a single record and reports whether it is
// reachable afterwards. Used to gate error retries: a record that is
// still unreachable is skipped, not retried blindly.
func (v *Verifier) CheckRecord(ctx context.Context, rec *domain.MediaRecord) (bool, error) {
	stats := &VerifyStats{}
	if err := v.verifyRecord(ctx, rec, stats); err != nil {
		return false, err
	}
	return stats.Errored == 0, nil
}

func (v *Verifier) verifyRecord(ctx context.Context, rec *domain.MediaRecord, stats *VerifyStats) error {
	if rec.IsAlbum() {
		return v.verifyAlbum(ctx, rec, stats)
	}

	if _, err := os.Stat(rec.Path); err == nil {
		if rec.ContentHash != "" {
			stats.OK++
			return nil
		}
		// Present but never hashed: establish identity now.
		digest, size, err := v.hashFile(rec.Path)
		if err != nil {
			// Hash unknown, not file absent. Leave the record for a
			// later pass rather than erroring it.
			v.logger.WithField(logger.FieldMediaID, rec.ID).WithError(err).
				Warn("File present but unreadable, hash deferred")
			stats.OK++
			return nil
		}
		if err := v.media.SetHash(ctx, rec.ID, digest, size); err != nil {
			return fmt.Errorf("failed to store hash: %w", err)
		}
		rec.ContentHash = digest
		stats.Hashed++
		return nil
	}

	// Path is gone. Without a stored hash there is no identity to search
	// for; that is terminal until an operator intervenes.
	if rec.ContentHash == "" {
		msg := "file missing and no content hash recorded; cannot relocate"
		if err := v.media.SetStatus(ctx, rec.ID, domain.MediaStatusError, msg); err != nil {
			return fmt.Errorf("failed to mark record errored: %w", err)
		}
		rec.Status = domain.MediaStatusError
		stats.Errored++
		return nil
	}

	newPath, found, err := v.relocate(ctx, rec.ContentHash, filepath.Base(rec.Path))
	if err != nil {
		return err
	}
	if !found {
		msg := fmt.Sprintf("file missing and no relocation candidate matched hash %s", rec.ContentHash)
		if err := v.media.SetStatus(ctx, rec.ID, domain.MediaStatusError, msg); err != nil {
			return fmt.Errorf("failed to mark record errored: %w", err)
		}
		rec.Status = domain.MediaStatusError
		stats.Errored++
		return nil
	}

	if err := v.media.UpdatePath(ctx, rec.ID, newPath); err != nil {
		return fmt.Errorf("failed to update relocated path: %w", err)
	}
	v.logger.WithFields(logger.Fields{
		logger.FieldMediaID: rec.ID,
		"old_path":          rec.Path,
		"new_path":          newPath,
	}).Info("Relocated moved file")
	rec.Path = newPath
	stats.Relocated++
	return nil
}

// verifyAlbum verifies an album record item by item. If any item is
// unrecoverable the album itself is marked errored; otherwise freshly
// computed item hashes are persisted.
func (v *Verifier) verifyAlbum(ctx context.Context, rec *domain.MediaRecord, stats *VerifyStats) error {
	items, err := v.media.ListAlbumItems(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to list album items: %w", err)
	}

	clean := true
	relocated := false
	for i := range items {
		item := &items[i]
		if _, err := os.Stat(item.Path); err == nil {
			if item.ContentHash != "" {
				continue
			}
			digest, size, err := v.hashFile(item.Path)
			if err != nil {
				v.logger.WithField(logger.FieldMediaID, rec.ID).WithError(err).
					Warn("Album item present but unreadable, hash deferred")
				continue
			}
			item.ContentHash = digest
			item.Size = size
			if err := v.media.UpdateAlbumItem(ctx, item); err != nil {
				return fmt.Errorf("failed to store album item hash: %w", err)
			}
			continue
		}

		if item.ContentHash == "" {
			clean = false
			continue
		}
		newPath, found, err := v.relocate(ctx, item.ContentHash, filepath.Base(item.Path))
		if err != nil {
			return err
		}
		if !found {
			clean = false
			continue
		}
		item.Path = newPath
		if err := v.media.UpdateAlbumItem(ctx, item); err != nil {
			return fmt.Errorf("failed to update relocated album item: %w", err)
		}
		relocated = true
	}

	if !clean {
		msg := "one or more album items are missing and could not be relocated"
		if err := v.media.SetStatus(ctx, rec.ID, domain.MediaStatusError, msg); err != nil {
			return fmt.Errorf("failed to mark album errored: %w", err)
		}
		rec.Status = domain.MediaStatusError
		stats.Errored++
		return nil
	}
	if relocated {
		stats.Relocated++
		return nil
	}
	stats.OK++
	return nil
}

// relocate searches the media root for a moved file by content hash.
// Phase one only hashes files sharing the original base filename, which
// keeps the common rename-the-folder case cheap. Phase two hashes every
// file in the tree until a match is found; it runs sequentially and logs
// progress, since it can take minutes on a large library.
func (v *Verifier) relocate(ctx context.Context, contentHash, baseName string) (string, bool, error) {
	// Fast path: same base filename.
	match, err := v.searchTree(ctx, func(path string) bool {
		return filepath.Base(path) == baseName
	}, contentHash, false)
	if err != nil || match != "" {
		return match, match != "", err
	}

	v.logger.WithField("hash", contentHash).
		Info("Filename search failed, falling back to full-tree hash scan")

	// Slow path: hash everything.
	match, err = v.searchTree(ctx, func(string) bool { return true }, contentHash, true)
	return match, match != "", err
}

// searchTree walks the media root, hashing candidate files until one
// matches the wanted digest. The reserved system subtree is skipped.
func (v *Verifier) searchTree(ctx context.Context, candidate func(string) bool, contentHash string, logProgress bool) (string, error) {
	systemRoot := filepath.Clean(v.lib.SystemRoot())
	scanned := 0
	var match string

	err := filepath.WalkDir(v.lib.MediaRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not relocation candidates
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if filepath.Clean(path) == systemRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !candidate(path) {
			return nil
		}

		digest, err := hash.File(path)
		if err != nil {
			return nil // unreadable, keep searching
		}
		scanned++
		if logProgress && scanned%500 == 0 {
			v.logger.WithField(logger.FieldCount, scanned).
				Info("Full-tree relocation scan in progress")
		}
		if digest == contentHash {
			match = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return match, nil
}

func (v *Verifier) hashFile(path string) (string, int64, error) {
	digest, err := hash.File(path)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return digest, info.Size(), nil
}
