package astria

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/domain"
	"github.com/basel-ax/tunerelay/internal/infrastructure/metrics"
)

const maxErrorBody = 64 << 10

// Client represents the Astria API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	tune       config.TuneConfig
	prompt     config.PromptConfig
}

var _ domain.Provider = (*Client)(nil)

// NewClient creates a new Astria API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Astria.HTTPTimeout,
		},
		baseURL: strings.TrimRight(cfg.Astria.BaseURL, "/"),
		apiKey:  cfg.Astria.APIKey,
		tune:    cfg.Tune,
		prompt:  cfg.Prompt,
	}
}

// CreateTune submits a multipart training job with the fixed model-family parameters
func (c *Client) CreateTune(ctx context.Context, req domain.TrainingRequest) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"tune[title]", req.Title},
		{"tune[name]", c.tune.ClassName},
		{"tune[base_tune_id]", strconv.Itoa(c.tune.BaseTuneID)},
		{"tune[model_type]", c.tune.ModelType},
		{"tune[preset]", c.tune.Preset},
	}
	if c.tune.CallbackURL != "" {
		fields = append(fields, [2]string{"tune[callback]", c.tune.CallbackURL})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f[0], err)
		}
	}

	for i, img := range req.Images {
		part, err := writer.CreatePart(imageHeader(i, img))
		if err != nil {
			return "", fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return "", fmt.Errorf("failed to write image part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/tunes", body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.do(httpReq, "create tune")
	if err != nil {
		return "", err
	}

	return extractID(raw)
}

type promptPayload struct {
	Prompt promptParams `json:"prompt"`
}

type promptParams struct {
	Text            string `json:"text"`
	SuperResolution bool   `json:"super_resolution,omitempty"`
	InpaintFaces    bool   `json:"inpaint_faces,omitempty"`
	Width           int    `json:"w,omitempty"`
	Height          int    `json:"h,omitempty"`
}

// CreatePrompt submits a generation job against a tune
func (c *Client) CreatePrompt(ctx context.Context, req domain.GenerationRequest) (string, error) {
	payload, err := json.Marshal(promptPayload{
		Prompt: promptParams{
			Text:            req.Prompt,
			SuperResolution: c.prompt.SuperResolution,
			InpaintFaces:    c.prompt.InpaintFaces,
			Width:           req.Width,
			Height:          req.Height,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/tunes/"+url.PathEscape(req.TuneID)+"/prompts", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, err := c.do(httpReq, "create prompt")
	if err != nil {
		return "", err
	}

	return extractID(raw)
}

// GetPrompt checks the status of a prompt job
func (c *Client) GetPrompt(ctx context.Context, tuneID, promptID string) (*domain.PromptStatus, error) {
	path := fmt.Sprintf("/tunes/%s/prompts/%s", url.PathEscape(tuneID), url.PathEscape(promptID))
	httpReq, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	raw, err := c.do(httpReq, "get prompt")
	if err != nil {
		return nil, err
	}

	var result struct {
		Status string   `json:"status"`
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &domain.UpstreamError{Op: "get prompt", StatusCode: http.StatusOK, Body: raw, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &domain.PromptStatus{
		ID:     promptID,
		Status: result.Status,
		Images: result.Images,
	}, nil
}

// Ping lists tunes to check that the provider is reachable and accepts the key
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/tunes", nil)
	if err != nil {
		return err
	}
	_, err = c.do(httpReq, "list tunes")
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

// do sends the request and returns the body of a 2xx response
func (c *Client) do(httpReq *http.Request, op string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveProviderCall(op, 0, time.Since(start))
		return nil, &domain.UpstreamError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()
	metrics.ObserveProviderCall(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: bytes.TrimSpace(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func imageHeader(i int, img domain.TrainingImage) textproto.MIMEHeader {
	name := img.Filename
	if name == "" {
		name = fmt.Sprintf("image-%d.jpg", i+1)
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="tune[images][]"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)
	return h
}
