package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server        ServerConfig
	Session       SessionConfig
	Chat          ChatConfig
	Speech        SpeechConfig
	Transcription TranscriptionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:        server,
		Session:       session,
		Chat:          chat,
		Speech:        speech,
		Transcription: loadTranscriptionConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr             string
	CORSOrigin       string
	CharactersFile   string
	LogLevel         slog.Level
	MetricsNamespace string
	UpstreamTimeout  time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	addr, err := parseListenAddr(os.Getenv("PORT"))
	if err != nil {
		return ServerConfig{}, err
	}

	level, err := parseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return ServerConfig{}, err
	}

	timeout, err := parseDurationEnv("UPSTREAM_TIMEOUT", 60*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:             addr,
		CORSOrigin:       strings.TrimSpace(os.Getenv("CORS_ORIGIN")),
		CharactersFile:   strings.TrimSpace(os.Getenv("CHARACTERS_FILE")),
		LogLevel:         level,
		MetricsNamespace: getEnvOrDefault("METRICS_NAMESPACE", "zcall"),
		UpstreamTimeout:  timeout,
	}, nil
}

func parseListenAddr(raw string) (string, error) {
	port := strings.TrimSpace(raw)
	if port == "" {
		port = "3005"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3005" 或 "127.0.0.1:3005"。
		return port, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: %w", value, err)
	}
	return level, nil
}

// SessionConfig 描述会话存储与 Cookie 配置。
type SessionConfig struct {
	Secret   string
	TTL      time.Duration
	Capacity int
}

// Signed 表示是否启用签名 Cookie。
func (c SessionConfig) Signed() bool {
	return c.Secret != ""
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	capacity := 10000
	if override, err := parseOptionalIntEnv("SESSION_CAPACITY"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_CAPACITY value %d: must be positive", *override)
		}
		capacity = *override
	}

	return SessionConfig{
		Secret:   strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		TTL:      ttl,
		Capacity: capacity,
	}, nil
}

// ChatConfig 描述上游对话模型配置。
type ChatConfig struct {
	APIKey    string
	APIURL    string
	Model     string
	MaxTokens int
}

// Enabled 表示是否提供了必需的密钥。
func (c ChatConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadChatConfig() (ChatConfig, error) {
	maxTokens := 1024
	if override, err := parseOptionalIntEnv("CLAUDE_MAX_TOKENS"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ChatConfig{}, fmt.Errorf("invalid CLAUDE_MAX_TOKENS value %d: must be positive", *override)
		}
		maxTokens = *override
	}

	return ChatConfig{
		APIKey:    strings.TrimSpace(os.Getenv("CLAUDE_API_KEY")),
		APIURL:    getEnvOrDefault("CLAUDE_API_URL", "https://api.anthropic.com/v1/messages"),
		Model:     strings.TrimSpace(os.Getenv("CLAUDE_MODEL")),
		MaxTokens: maxTokens,
	}, nil
}

// SpeechConfig 描述语音合成配置。
type SpeechConfig struct {
	APIKey string
	APIURL string
}

// Enabled 表示是否提供了语音合成密钥。
func (c SpeechConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	return SpeechConfig{
		APIKey: strings.TrimSpace(os.Getenv("KURDISH_TTS_API_KEY")),
		APIURL: getEnvOrDefault("KURDISH_TTS_API_URL", "https://www.kurdishtts.com/api/tts-proxy"),
	}, nil
}

// TranscriptionConfig 描述语音识别配置。
type TranscriptionConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
}

// Enabled 表示是否提供了语音识别密钥。
func (c TranscriptionConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		APIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		BaseURL:  strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		Language: getEnvOrDefault("TRANSCRIBE_LANGUAGE", "Kurdish Sorani"),
	}
}

// CredentialReport 返回各上游凭证是否存在，仅包含布尔值，便于启动日志。
func (c *Config) CredentialReport() map[string]bool {
	return map[string]bool{
		"CLAUDE_API_KEY":      c.Chat.Enabled(),
		"KURDISH_TTS_API_KEY": c.Speech.Enabled(),
		"GEMINI_API_KEY":      c.Transcription.Enabled(),
		"SESSION_SECRET":      c.Session.Signed(),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
