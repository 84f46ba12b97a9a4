package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
)

// TagHandler manages the tag vocabulary.
type TagHandler struct {
	tags *repository.TagRepository
}

// NewTagHandler creates a new tag handler.
func NewTagHandler(tags *repository.TagRepository) *TagHandler {
	return &TagHandler{tags: tags}
}

// List returns the whole vocabulary.
func (h *TagHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	all, err := h.tags.ListAll(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to list tags: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tags"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": all, "count": len(all)})
}

// CreateTagRequest is the POST /tags payload.
type CreateTagRequest struct {
	Name              string `json:"name" binding:"required"`
	Description       string `json:"description"`
	Color             string `json:"color"`
	ParseFromFilename bool   `json:"parse_from_filename"`
	AICanSuggest      bool   `json:"ai_can_suggest"`
}

// Create adds a vocabulary entry. Associations are never created here;
// a follow-up tag_scan job applies the new tag across the catalog.
func (h *TagHandler) Create(c *gin.Context) {
	var req CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	tag := &domain.Tag{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Description:       req.Description,
		Color:             req.Color,
		ParseFromFilename: req.ParseFromFilename,
		AICanSuggest:      req.AICanSuggest,
	}
	if err := h.tags.Create(c.Request.Context(), tag); err != nil {
		logger.CtxError(c.Request.Context(), "Failed to create tag: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": "failed to create tag, name may already exist"})
		return
	}
	c.JSON(http.StatusCreated, tag)
}
