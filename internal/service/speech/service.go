package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	speechmodel "github.com/zhouzirui/z-call/backend/internal/model/speech"
)

const (
	defaultMimeType = "audio/webm"
	defaultLanguage = "Kurdish Sorani"
)

var (
	// ErrTTSDisabled is returned by Synthesize when no TTS key is configured.
	ErrTTSDisabled = errors.New("text to speech disabled")
	// ErrMissingAudio is returned when a transcription request has no audio.
	ErrMissingAudio = apperr.NewBadRequest("Missing audio")
	// ErrInvalidAudio is returned when the audio is not valid base64.
	ErrInvalidAudio = apperr.NewBadRequest("Invalid audio encoding")
)

// Synthesizer turns text into base64 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speakerID string) (string, error)
	Enabled() bool
}

// Transcriber turns decoded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error)
	Enabled() bool
}

// Service 语音服务，组合语音合成与语音识别。
type Service struct {
	tts             Synthesizer
	transcriber     Transcriber
	defaultLanguage string
}

// NewService 创建语音服务实例。
func NewService(tts Synthesizer, transcriber Transcriber, language string) *Service {
	if strings.TrimSpace(language) == "" {
		language = defaultLanguage
	}
	return &Service{
		tts:             tts,
		transcriber:     transcriber,
		defaultLanguage: language,
	}
}

// Synthesize 文字转语音，返回 base64 编码的音频。
func (s *Service) Synthesize(ctx context.Context, text, speakerID string) (string, error) {
	return s.tts.Synthesize(ctx, text, speakerID)
}

// TTSEnabled 表示是否配置了语音合成。
func (s *Service) TTSEnabled() bool {
	return s.tts.Enabled()
}

// TranscriptionEnabled 表示是否配置了语音识别。
func (s *Service) TranscriptionEnabled() bool {
	return s.transcriber.Enabled()
}

// Transcribe 语音转文字。音频为 base64，可带 data URL 前缀。
func (s *Service) Transcribe(ctx context.Context, req speechmodel.TranscribeRequest) (string, error) {
	if !s.transcriber.Enabled() {
		return "", apperr.MissingCredential("GEMINI_API_KEY")
	}

	payload := strings.TrimSpace(req.Audio)
	if payload == "" {
		return "", ErrMissingAudio
	}

	mimeType := strings.TrimSpace(req.MimeType)
	if header, data, ok := strings.Cut(payload, ","); ok && strings.HasPrefix(header, "data:") {
		payload = data
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
	}
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidAudio
	}
	return s.TranscribeAudio(ctx, audio, mimeType, req.Language)
}

// TranscribeAudio 识别已解码的音频，空参数使用默认值。
func (s *Service) TranscribeAudio(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	if !s.transcriber.Enabled() {
		return "", apperr.MissingCredential("GEMINI_API_KEY")
	}
	if len(audio) == 0 {
		return "", ErrMissingAudio
	}
	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		mimeType = defaultMimeType
	}
	if language = strings.TrimSpace(language); language == "" {
		language = s.defaultLanguage
	}
	return s.transcriber.Transcribe(ctx, audio, mimeType, language)
}
