package speech

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/model/speech"
	"github.com/zhouzirui/z-call/backend/pkg/utils"
)

const maxUploadBytes = 20 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Transcribe(ctx context.Context, req speech.TranscribeRequest) (string, error)
	TranscribeAudio(ctx context.Context, audio []byte, mimeType, language string) (string, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
}

// New 创建语音处理器
func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/transcribe", h.handleTranscribe)
}

// handleTranscribe 处理语音转文本请求。支持 JSON（base64 音频）与 multipart 上传。
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		text string
		err  error
	)
	if mediaType == "multipart/form-data" {
		text, err = h.transcribeUpload(r)
	} else {
		var payload speech.TranscribeRequest
		if decodeErr := utils.DecodeJSON(r, &payload); decodeErr != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text, err = h.speechSvc.Transcribe(r.Context(), payload)
	}
	if err != nil {
		utils.RespondError(w, apperr.HTTPStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, speech.TranscribeResponse{Success: true, Text: text})
}

func (h *Handler) transcribeUpload(r *http.Request) (string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", apperr.NewBadRequest("failed to parse multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", apperr.NewBadRequest("Missing audio")
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return "", apperr.NewBadRequest("failed to read audio")
	}

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = inferMimeType(header.Filename)
	}

	return h.speechSvc.TranscribeAudio(r.Context(), audio, mimeType, r.FormValue("lang"))
}

// inferMimeType 从文件名推断音频类型，未知时交给服务使用默认值
func inferMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	default:
		return ""
	}
}
