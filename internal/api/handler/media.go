package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
)

// MediaHandler exposes read-only access to the media catalog.
type MediaHandler struct {
	media *repository.MediaRepository
	tags  *repository.TagRepository
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(media *repository.MediaRepository, tags *repository.TagRepository) *MediaHandler {
	return &MediaHandler{media: media, tags: tags}
}

// List returns catalog records, optionally filtered by status.
func (h *MediaHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		recs []domain.MediaRecord
		err  error
	)
	if status := c.Query("status"); status != "" {
		recs, err = h.media.ListByStatus(ctx, domain.MediaStatus(status))
	} else {
		recs, err = h.media.ListAll(ctx)
	}
	if err != nil {
		logger.CtxError(ctx, "Failed to list media: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list media"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"media": recs, "count": len(recs)})
}

// Get returns one record with its tags, plus album items for albums.
func (h *MediaHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	rec, err := h.media.GetByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media record not found"})
		return
	}

	recTags, err := h.tags.ListForMedia(ctx, id)
	if err != nil {
		logger.CtxError(ctx, "Failed to list tags for media %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tags"})
		return
	}

	resp := gin.H{"media": rec, "tags": recTags}
	if rec.IsAlbum() {
		items, err := h.media.ListAlbumItems(ctx, id)
		if err != nil {
			logger.CtxError(ctx, "Failed to list album items for %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load album items"})
			return
		}
		resp["items"] = items
	}

	c.JSON(http.StatusOK, resp)
}

// Stats returns catalog counts per status.
func (h *MediaHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := h.media.CountByStatus(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to count media: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count media"})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_status": counts})
}
