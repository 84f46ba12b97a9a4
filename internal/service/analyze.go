package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/prompts"
	"github.com/tmn/memelet/internal/repository"
)

// AnalysisResult is the parsed outcome of one vision-model call.
type AnalysisResult struct {
	Fields repository.AnalysisFields
	Tags   []string
}

// AnalysisService runs the vision-model pass for one record: sample
// extraction, prompt assembly, the model call, and the tolerant parse
// of whatever comes back.
type AnalysisService struct {
	ai        Analyzer
	extractor *FrameExtractor
	tags      *repository.TagRepository
	timeout   time.Duration
	logger    *logger.Logger
}

// NewAnalysisService creates a new analysis service.
// Parameters:
//   - ai: vision model client.
//   - extractor: frame extractor for sample preparation.
//   - tags: tag repository, used to build the suggestion whitelist.
//   - timeout: per-record wall-clock bound covering extraction and the
//     model call; zero disables the bound.
//   - log: logger instance.
//
// Returns:
//   - *AnalysisService: initialized service.
func NewAnalysisService(ai Analyzer, extractor *FrameExtractor, tags *repository.TagRepository, timeout time.Duration, log *logger.Logger) *AnalysisService {
	return &AnalysisService{
		ai:        ai,
		extractor: extractor,
		tags:      tags,
		timeout:   timeout,
		logger:    log,
	}
}

// Analyze runs the full analysis pass for one record.
// Parameters:
//   - ctx: context for cancellation.
//   - rec: record to analyze. Must be status=processing when the caller
//     persists the result.
//   - items: album items in display order; empty for non-albums.
//
// Returns:
//   - *AnalysisResult: descriptive fields and suggested tag names.
//   - error: wraps ErrExtraction, ErrAnalysis or ErrParse so the caller
//     can record which stage failed.
func (s *AnalysisService) Analyze(ctx context.Context, rec *domain.MediaRecord, items []domain.AlbumItem) (*AnalysisResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	userPrompt, err := s.buildPrompt(ctx, rec)
	if err != nil {
		return nil, err
	}

	samples, err := s.extractor.Extract(ctx, rec, items)
	if err != nil {
		return nil, err
	}
	defer samples.Cleanup()

	start := time.Now()
	raw, err := s.ai.Analyze(ctx, prompts.SystemPrompt, userPrompt, samples.Refs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}

	result, err := parseResponse(raw)
	if err != nil {
		s.logger.WithFields(logger.Fields{
			logger.FieldMediaID: rec.ID,
			"response_preview":  tail(raw),
		}).WithError(err).Error("Model response could not be parsed")
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldMediaID: rec.ID,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"model":               s.ai.Model(),
		"samples":             len(samples.Refs),
		"suggested_tags":      len(result.Tags),
	}).Info(ctx, "Analysis completed")

	return result, nil
}

// buildPrompt assembles the per-media-type user prompt, including the
// current tag-suggestion whitelist.
func (s *AnalysisService) buildPrompt(ctx context.Context, rec *domain.MediaRecord) (string, error) {
	suggestable, err := s.tags.ListAISuggestable(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load suggestable tags: %w", err)
	}
	names := make([]string, len(suggestable))
	descriptions := make([]string, len(suggestable))
	for i, tag := range suggestable {
		names[i] = tag.Name
		descriptions[i] = tag.Description
	}
	instruction := prompts.TagInstruction(names, descriptions)

	switch rec.MediaType {
	case domain.MediaTypeImage:
		return prompts.ImagePrompt(instruction), nil
	case domain.MediaTypeGif, domain.MediaTypeVideo:
		return prompts.AnimationPrompt(instruction), nil
	case domain.MediaTypeAlbum:
		return prompts.AlbumPrompt(instruction), nil
	default:
		return "", fmt.Errorf("%w: no prompt for media type %q", ErrAnalysis, rec.MediaType)
	}
}

// parseResponse turns a raw model reply into an AnalysisResult. Models
// routinely wrap JSON in markdown fences, return lists where strings
// were asked for, or null out fields they chose to omit; all of that is
// tolerated. Only a reply with no parseable JSON object is an ErrParse.
func parseResponse(raw string) (*AnalysisResult, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	result := &AnalysisResult{
		Fields: repository.AnalysisFields{
			References:  normalizeField(payload["references"]),
			Template:    normalizeField(payload["template"]),
			Caption:     normalizeField(payload["caption"]),
			Description: normalizeField(payload["description"]),
			Meaning:     normalizeField(payload["meaning"]),
		},
		Tags: parseTags(payload["tags"]),
	}
	return result, nil
}

// stripFences removes a surrounding markdown code fence, with or without
// a language marker, and trims whitespace.
func stripFences(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	// Drop the language marker on the opening fence line, if present.
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		first := strings.TrimSpace(body[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			body = body[idx+1:]
		}
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

// normalizeField coerces one descriptive field to a string. A JSON
// string passes through, a list joins with newlines, null and absence
// leave the field unset, and anything else keeps its JSON text.
func normalizeField(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &str
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		joined := strings.Join(list, "\n")
		return &joined
	}

	text := string(raw)
	return &text
}

// parseTags coerces the tags field to a name list. A JSON list of
// strings is taken as-is; a single string is split on commas and
// newlines. Names are trimmed and deduplicated case-insensitively,
// first occurrence wins.
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var names []string
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		names = list
	} else {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil
		}
		names = strings.FieldsFunc(str, func(r rune) bool {
			return r == ',' || r == '\n'
		})
	}

	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}
