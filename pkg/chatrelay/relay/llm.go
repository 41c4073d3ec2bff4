// llm.go implements the completion and image-generation client on top of
// go-openai, and classifies every failure into the small error taxonomy the
// orchestrator reasons about.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// maxImageBytes caps the size of a downloaded generated image.
const maxImageBytes = 25 << 20

// Completer submits a chat completion request.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Painter generates an image and fetches its bytes.
type Painter interface {
	Draw(ctx context.Context, req ImageRequest) (*ImageResponse, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	Engine          EngineTier
	Model           string
	Messages        []Turn
	MaxOutputTokens int
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	Text       string
	TokensUsed int64
}

// Metered reports whether the service returned usage for this call.
func (r *CompletionResponse) Metered() bool {
	return r.TokensUsed > 0
}

// ImageRequest is one image-generation call.
type ImageRequest struct {
	Prompt  string
	Model   string
	Size    string
	Quality string
	Count   int
}

// ImageResponse points at the generated image.
type ImageResponse struct {
	URL           string
	RevisedPrompt string
}

// ---------- Error Classification ----------

// ErrorKind classifies remote failures.
type ErrorKind int

const (
	ErrorAPI ErrorKind = iota // server, auth and anything unclassified
	ErrorTimeout
	ErrorConnection
	ErrorRateLimit
	ErrorInvalidRequest // request rejected as malformed or too large
)

// String returns the category name shown to users.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTimeout:
		return "Timeout"
	case ErrorConnection:
		return "APIConnectionError"
	case ErrorRateLimit:
		return "RateLimitError"
	case ErrorInvalidRequest:
		return "InvalidRequestError"
	default:
		return "APIError"
	}
}

// Transient reports whether the failure is worth a manual resend.
func (k ErrorKind) Transient() bool {
	return k == ErrorTimeout || k == ErrorConnection || k == ErrorRateLimit
}

// CompletionError is a classified remote failure.
type CompletionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CompletionError) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func (e *CompletionError) Unwrap() error { return e.Err }

// KindOf returns the kind of a classified error, or ErrorAPI for anything else.
func KindOf(err error) ErrorKind {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorAPI
}

// classifyError maps an error returned by go-openai or the HTTP stack to a
// CompletionError.
func classifyError(err error) *CompletionError {
	if err == nil {
		return nil
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &CompletionError{Kind: ErrorTimeout, Message: "request timed out", Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		return &CompletionError{
			Kind:    classifyStatus(apiErr.HTTPStatusCode, apiErr.Type+" "+code+" "+apiErr.Message),
			Message: apiErr.Message,
			Err:     err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		msg := strings.TrimSpace(body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &CompletionError{
			Kind:    classifyStatus(reqErr.HTTPStatusCode, body),
			Message: truncate(msg, 300),
			Err:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CompletionError{Kind: ErrorTimeout, Message: "request timed out", Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &CompletionError{Kind: ErrorConnection, Message: err.Error(), Err: err}
	}

	return &CompletionError{Kind: ErrorAPI, Message: err.Error(), Err: err}
}

// classifyStatus determines the error kind from the HTTP status and body.
func classifyStatus(statusCode int, body string) ErrorKind {
	bodyLower := strings.ToLower(body)

	// Context overflow takes precedence over the status code.
	if strings.Contains(bodyLower, "context_length_exceeded") ||
		strings.Contains(bodyLower, "maximum context length") {
		return ErrorInvalidRequest
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return ErrorTimeout
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusRequestEntityTooLarge,
		statusCode == http.StatusUnprocessableEntity:
		return ErrorInvalidRequest
	default:
		return ErrorAPI
	}
}

// ---------- Client ----------

// LLMClient talks to an OpenAI-compatible API.
type LLMClient struct {
	client     *openai.Client
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a client for the configured endpoint.
func NewLLMClient(cfg APIConfig, timeout time.Duration, logger *slog.Logger) *LLMClient {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: timeout}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	config.HTTPClient = httpClient

	return &LLMClient{
		client:     openai.NewClientWithConfig(config),
		httpClient: httpClient,
		logger:     logger.With("component", "llm"),
	}
}

// Complete sends a chat completion request and returns the first choice.
func (c *LLMClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxOutputTokens > 0 {
		chatReq.MaxTokens = req.MaxOutputTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		ce := classifyError(err)
		c.logger.Warn("completion failed",
			"model", req.Model,
			"messages", len(req.Messages),
			"kind", ce.Kind.String(),
			"error", err,
		)
		return nil, ce
	}
	if len(resp.Choices) == 0 {
		return nil, &CompletionError{Kind: ErrorAPI, Message: "response contained no choices"}
	}

	c.logger.Debug("completion done",
		"model", req.Model,
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &CompletionResponse{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: int64(resp.Usage.TotalTokens),
	}, nil
}

// Draw requests an image and returns the URL of the first result.
func (c *LLMClient) Draw(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	imgReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		Size:           req.Size,
		Quality:        req.Quality,
		N:              max(req.Count, 1),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}

	resp, err := c.client.CreateImage(ctx, imgReq)
	if err != nil {
		ce := classifyError(err)
		c.logger.Warn("image generation failed", "model", req.Model, "kind", ce.Kind.String(), "error", err)
		return nil, ce
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, &CompletionError{Kind: ErrorAPI, Message: "response contained no image"}
	}

	revised := resp.Data[0].RevisedPrompt
	if revised == "" {
		revised = req.Prompt
	}
	return &ImageResponse{URL: resp.Data[0].URL, RevisedPrompt: revised}, nil
}

// Fetch downloads the bytes behind a URL.
func (c *LLMClient) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &CompletionError{
			Kind:    classifyStatus(resp.StatusCode, string(body)),
			Message: fmt.Sprintf("image download returned %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, classifyError(err)
	}
	return data, nil
}

// toOpenAIMessages converts turns to the go-openai wire shape. Multimodal
// content goes into MultiContent; Content and MultiContent are never both set.
func toOpenAIMessages(turns []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleSystem {
			role = openai.ChatMessageRoleSystem
		}

		if !t.Content.IsMultimodal() {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content.Text})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(t.Content.Parts))
		for _, p := range t.Content.Parts {
			switch p.Type {
			case PartImageURL:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: p.URL, Detail: openai.ImageURLDetailAuto},
				})
			default:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return msgs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
