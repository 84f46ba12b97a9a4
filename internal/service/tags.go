package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
)

// TagService reconciles tag associations against the current vocabulary.
// Both passes are additive and idempotent: re-running them only ever
// creates associations that do not yet exist, and never removes any.
type TagService struct {
	media  *repository.MediaRepository
	tags   *repository.TagRepository
	lib    config.LibraryConfig
	logger *logger.Logger
}

// NewTagService creates a new tag reconciler.
func NewTagService(media *repository.MediaRepository, tags *repository.TagRepository, lib config.LibraryConfig, log *logger.Logger) *TagService {
	return &TagService{media: media, tags: tags, lib: lib, logger: log}
}

// PathPass applies filename-derived tags to one record. A tag matches
// when its name appears, case-insensitively, in the record's filename,
// its album title, or any folder name on the path below the library
// root.
// Parameters:
//   - ctx: context for cancellation.
//   - rec: record to tag.
//
// Returns:
//   - int: number of newly created associations.
//   - error: non-nil on store failure.
func (t *TagService) PathPass(ctx context.Context, rec *domain.MediaRecord) (int, error) {
	matchable, err := t.tags.ListPathMatchable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load path-matchable tags: %w", err)
	}
	if len(matchable) == 0 {
		return 0, nil
	}

	// Only path components below the library root count. Folder names
	// above it (a user directory, a mount point) must not tag every
	// record in the catalog.
	path := rec.Path
	if rel, err := filepath.Rel(t.lib.MediaRoot, rec.Path); err == nil && !strings.HasPrefix(rel, "..") {
		path = rel
	}
	haystack := strings.ToLower(path)
	if rec.Title != "" {
		haystack += "\n" + strings.ToLower(rec.Title)
	}

	applied := 0
	for _, tag := range matchable {
		if !strings.Contains(haystack, strings.ToLower(tag.Name)) {
			continue
		}
		created, err := t.tags.Attach(ctx, rec.ID, tag.ID)
		if err != nil {
			return applied, fmt.Errorf("failed to attach tag %s: %w", tag.Name, err)
		}
		if created {
			applied++
		}
	}
	return applied, nil
}

// AIPass applies the record's stored AI tag suggestions against the
// current suggestable vocabulary. Matching is exact on the
// case-folded name; suggestions outside the vocabulary are logged and
// dropped, never created as new tags.
// Parameters:
//   - ctx: context for cancellation.
//   - rec: record whose SuggestedTags to reconcile.
//
// Returns:
//   - int: number of newly created associations.
//   - error: non-nil on store failure.
func (t *TagService) AIPass(ctx context.Context, rec *domain.MediaRecord) (int, error) {
	if len(rec.SuggestedTags) == 0 {
		return 0, nil
	}

	suggestable, err := t.tags.ListAISuggestable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load suggestable tags: %w", err)
	}
	byName := make(map[string]string, len(suggestable))
	for _, tag := range suggestable {
		byName[strings.ToLower(tag.Name)] = tag.ID
	}

	applied := 0
	for _, name := range rec.SuggestedTags {
		tagID, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			t.logger.WithFields(logger.Fields{
				logger.FieldMediaID: rec.ID,
				"tag":               name,
			}).Warn("Dropping suggested tag outside the vocabulary")
			continue
		}
		created, err := t.tags.Attach(ctx, rec.ID, tagID)
		if err != nil {
			return applied, fmt.Errorf("failed to attach tag %s: %w", name, err)
		}
		if created {
			applied++
		}
	}
	return applied, nil
}

// Reconcile runs both passes for one record and reports the combined
// count of new associations.
func (t *TagService) Reconcile(ctx context.Context, rec *domain.MediaRecord) (int, error) {
	fromPath, err := t.PathPass(ctx, rec)
	if err != nil {
		return fromPath, err
	}
	fromAI, err := t.AIPass(ctx, rec)
	return fromPath + fromAI, err
}
