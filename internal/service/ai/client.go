package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/observability"
)

const (
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	serviceName     = "Claude API"
	listServiceName = "Claude models list"

	maxErrorBody = 64 << 10
)

// errUndecodable marks a 2xx response whose body could not be parsed.
var errUndecodable = errors.New("undecodable response")

// Client talks to the Anthropic Messages API over plain HTTP.
type Client struct {
	apiKey      string
	messagesURL string
	modelsURL   string
	httpClient  *http.Client
	observer    observability.UpstreamObserver
}

// NewClient builds a client for messagesURL. The models listing lives at the
// origin of messagesURL under /v1/models.
func NewClient(apiKey, messagesURL string, httpClient *http.Client, observer observability.UpstreamObserver) (*Client, error) {
	modelsURL, err := modelsEndpoint(messagesURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if observer == nil {
		observer = (*observability.Metrics)(nil)
	}
	return &Client{
		apiKey:      apiKey,
		messagesURL: messagesURL,
		modelsURL:   modelsURL,
		httpClient:  httpClient,
		observer:    observer,
	}, nil
}

func modelsEndpoint(messagesURL string) (string, error) {
	u, err := url.Parse(messagesURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid CLAUDE_API_URL %q", messagesURL)
	}
	u.Path = "/v1/models"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

type messageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []messageParam `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ModelInfo is one entry of the models listing.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// createMessage posts req and returns the decoded response. The first
// content block must carry text that is not blank.
func (c *Client) createMessage(ctx context.Context, req *messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, c.messagesURL, body, serviceName)
	c.observer.ObserveUpstream(observability.ServiceClaude, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var decoded messagesResponse
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return nil, &apperr.UpstreamError{Service: serviceName, Body: "unexpected response body", Err: err}
	}
	if len(decoded.Content) == 0 || strings.TrimSpace(decoded.Content[0].Text) == "" {
		return nil, &apperr.UpstreamError{Service: serviceName, Body: "response contained no text"}
	}
	return &decoded, nil
}

// ListModels fetches the models listing. A non-2xx reply is an
// *apperr.UpstreamError; an unparseable 2xx body wraps errUndecodable.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, c.modelsURL, nil, listServiceName)
	c.observer.ObserveUpstream(observability.ServiceClaudeList, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var decoded modelsResponse
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodable, err)
	}
	return decoded.Data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, service string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperr.UpstreamError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &apperr.UpstreamError{Service: service, Status: resp.StatusCode, Body: string(errBody)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.UpstreamError{Service: service, Err: fmt.Errorf("read response: %w", err)}
	}
	return respBody, nil
}

// setHeaders sets the required Anthropic API headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
}
