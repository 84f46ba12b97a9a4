package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Analyzer is the vendor-agnostic AI capability the dispatcher depends on.
// The dispatcher owns prompt construction and response parsing; the
// implementation owns only transport.
type Analyzer interface {
	// Analyze sends the prompts plus sample image references (data: URLs
	// or public URLs) and returns the raw textual response.
	Analyze(ctx context.Context, systemPrompt, userPrompt string, sampleRefs []string) (string, error)

	// Model returns the model identifier in use.
	Model() string
}

// VLMService implements Analyzer against an OpenAI-compatible chat
// completions endpoint.
type VLMService struct {
	client    *resty.Client
	model     string
	endpoint  string
	maxTokens int
}

// VLMConfig holds configuration for the VLM service.
type VLMConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// NewVLMService creates a new VLM client.
// Parameters:
//   - cfg: VLM configuration including model, API key, and base URL.
//
// Returns:
//   - *VLMService: initialized VLM client wrapper.
func NewVLMService(cfg *VLMConfig) *VLMService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	// Client-side ceiling; callers additionally bound each request with
	// a context deadline.
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	return &VLMService{
		client:    client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

// Model returns the model identifier being used.
func (s *VLMService) Model() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Analyze sends one request carrying every sample frame and returns the
// model's raw text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - systemPrompt: role definition for the model.
//   - userPrompt: analysis instructions including the JSON contract.
//   - sampleRefs: image references, data: URLs or publicly reachable URLs.
//
// Returns:
//   - string: raw response text.
//   - error: non-nil if the API request fails or returns no choices.
func (s *VLMService) Analyze(ctx context.Context, systemPrompt, userPrompt string, sampleRefs []string) (string, error) {
	content := make([]interface{}, 0, len(sampleRefs)+1)
	content = append(content, openAITextContent{
		Type: "text",
		Text: userPrompt,
	})
	for _, ref := range sampleRefs {
		content = append(content, openAIImageContent{
			Type: "image_url",
			ImageURL: openAIImageURL{
				URL:    ref,
				Detail: "auto", // auto gives better caption/text recognition
			},
		})
	}

	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
		MaxTokens: s.maxTokens,
	}

	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call VLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("VLM API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("VLM API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		errorMsg := fmt.Sprintf("no choices in response (status: %d)", httpResp.StatusCode())
		if len(httpResp.Body()) > 0 {
			errorMsg += fmt.Sprintf(", response body: %s", string(httpResp.Body()))
		}
		return "", fmt.Errorf("no response from VLM API: %s", errorMsg)
	}

	return resp.Choices[0].Message.Content, nil
}
