package speech

// TranscribeResponse 语音识别结果。
type TranscribeResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}
