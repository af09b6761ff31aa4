package speech

// TranscribeRequest 语音识别请求，音频为 base64 编码。
type TranscribeRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mime_type,omitempty"`
	Language string `json:"lang,omitempty"`
}

// SynthesizeRequest 语音合成请求，与 Kurdish TTS 代理的请求体一致。
type SynthesizeRequest struct {
	Text      string `json:"text"`
	SpeakerID string `json:"speaker_id"`
}
