package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/observability"
	"google.golang.org/genai"
)

const geminiServiceName = "Gemini"

// GeminiTranscriber turns recorded audio into text with a Gemini model.
type GeminiTranscriber struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	observer   observability.UpstreamObserver

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGeminiTranscriber builds a transcriber. The genai client is created on
// first use.
func NewGeminiTranscriber(apiKey, model, baseURL string, httpClient *http.Client, observer observability.UpstreamObserver) *GeminiTranscriber {
	if observer == nil {
		observer = (*observability.Metrics)(nil)
	}
	return &GeminiTranscriber{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		observer:   observer,
	}
}

// Enabled reports whether an API key is configured.
func (t *GeminiTranscriber) Enabled() bool {
	return t.apiKey != ""
}

func (t *GeminiTranscriber) genaiClient(ctx context.Context) (*genai.Client, error) {
	t.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     t.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: t.httpClient,
		}
		if t.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: t.baseURL}
		}
		t.client, t.clientErr = genai.NewClient(ctx, cfg)
	})
	return t.client, t.clientErr
}

// Transcribe sends audio with the transcription prompt and returns the text.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	if !t.Enabled() {
		return "", apperr.MissingCredential("GEMINI_API_KEY")
	}

	client, err := t.genaiClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(transcriptionPrompt(language)),
		genai.NewPartFromBytes(audio, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		err = mapGeminiError(err)
	}
	t.observer.ObserveUpstream(observability.ServiceTranscriber, time.Since(start), err)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &apperr.UpstreamError{Service: geminiServiceName, Body: "returned no text"}
	}
	return text, nil
}

func transcriptionPrompt(language string) string {
	return fmt.Sprintf("Transcribe this audio precisely into %s text. Only provide the text output.", language)
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.UpstreamError{Service: geminiServiceName, Status: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &apperr.UpstreamError{Service: geminiServiceName, Status: apiErrPtr.Code, Body: apiErrPtr.Message, Err: err}
	}
	return &apperr.UpstreamError{Service: geminiServiceName, Err: err}
}
