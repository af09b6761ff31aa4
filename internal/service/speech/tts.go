package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	speechmodel "github.com/zhouzirui/z-call/backend/internal/model/speech"
	"github.com/zhouzirui/z-call/backend/internal/observability"
)

const (
	ttsServiceName  = "Kurdish TTS"
	maxTTSErrorBody = 4 << 10
	maxAudioBytes   = 32 << 20
)

// KurdishTTSClient posts text to the Kurdish TTS proxy and returns the raw
// audio it answers with.
type KurdishTTSClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	observer   observability.UpstreamObserver
}

// NewKurdishTTSClient builds a client. httpClient may be nil.
func NewKurdishTTSClient(apiKey, apiURL string, httpClient *http.Client, observer observability.UpstreamObserver) *KurdishTTSClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if observer == nil {
		observer = (*observability.Metrics)(nil)
	}
	return &KurdishTTSClient{
		apiKey:     apiKey,
		apiURL:     apiURL,
		httpClient: httpClient,
		observer:   observer,
	}
}

// Enabled reports whether an API key is configured.
func (c *KurdishTTSClient) Enabled() bool {
	return c.apiKey != ""
}

// Synthesize returns base64 encoded audio for text.
func (c *KurdishTTSClient) Synthesize(ctx context.Context, text, speakerID string) (string, error) {
	if !c.Enabled() {
		return "", ErrTTSDisabled
	}

	body, err := json.Marshal(speechmodel.SynthesizeRequest{Text: text, SpeakerID: speakerID})
	if err != nil {
		return "", fmt.Errorf("marshal tts request: %w", err)
	}

	start := time.Now()
	audio, err := c.post(ctx, body)
	c.observer.ObserveUpstream(observability.ServiceTTS, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

func (c *KurdishTTSClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.UpstreamError{Service: ttsServiceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxTTSErrorBody))
		return nil, &apperr.UpstreamError{Service: ttsServiceName, Status: resp.StatusCode, Body: string(errBody)}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, &apperr.UpstreamError{Service: ttsServiceName, Err: fmt.Errorf("read audio: %w", err)}
	}
	if len(audio) == 0 {
		return nil, &apperr.UpstreamError{Service: ttsServiceName, Body: "empty audio"}
	}
	return audio, nil
}
