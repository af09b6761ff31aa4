package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-call/backend/internal/config"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
	"github.com/zhouzirui/z-call/backend/internal/service/ai"
	"github.com/zhouzirui/z-call/backend/internal/service/relay"
	"github.com/zhouzirui/z-call/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: chat、greet、tts 或 asr")
	characterID := flag.String("character", "sara", "角色 ID")
	message := flag.String("message", "", "chat 模式发送的消息")
	text := flag.String("text", "", "TTS 输入文本")
	speaker := flag.String("speaker", "", "TTS 发音人，默认使用角色的 speaker_id")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	language := flag.String("lang", "", "ASR 语言，默认使用配置中的语言")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认自动生成)")
	timeout := flag.Duration("timeout", 60*time.Second, "请求超时时间")

	flag.Parse()

	roster, err := character.LoadFile(cfg.Server.CharactersFile)
	if err != nil {
		log.Fatalf("角色加载失败: %v", err)
	}
	ch, ok := character.NewMemoryStore(roster).FindByID(*characterID)
	if !ok {
		log.Fatalf("未知角色: %s", *characterID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.Server.UpstreamTimeout}

	switch *mode {
	case "chat":
		runChat(ctx, cfg, httpClient, ch, *message)
	case "greet":
		runGreeting(ctx, cfg, httpClient, ch)
	case "tts":
		if *speaker == "" {
			*speaker = ch.SpeakerID
		}
		runTTS(ctx, cfg, httpClient, *text, *speaker, *outputPath)
	case "asr":
		runASR(ctx, cfg, httpClient, *audioPath, *language)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=chat|greet|tts|asr 指定测试模式")
	}
}

func newChatService(cfg *config.Config, httpClient *http.Client) *ai.Service {
	svc, err := ai.NewService(cfg.Chat, httpClient, nil, nil)
	if err != nil {
		log.Fatalf("对话服务初始化失败: %v", err)
	}
	if err := svc.Ready(); err != nil {
		log.Fatal(err)
	}
	return svc
}

func runChat(ctx context.Context, cfg *config.Config, httpClient *http.Client, ch character.Character, message string) {
	if strings.TrimSpace(message) == "" {
		log.Fatal("chat 模式需要通过 -message 提供消息")
	}

	svc := newChatService(cfg, httpClient)
	log.Printf("开始对话测试: character=%s", ch.ID)

	reply, err := svc.Complete(ctx, ch, message, []chat.Turn{})
	if err != nil {
		log.Fatalf("对话调用失败: %v", err)
	}

	cleaned, endCall := relay.StripEndCall(reply)
	log.Printf("回复: %q end_call=%t", cleaned, endCall)
}

func runGreeting(ctx context.Context, cfg *config.Config, httpClient *http.Client, ch character.Character) {
	svc := newChatService(cfg, httpClient)

	greeting, ok := svc.InitialGreeting(ctx, ch)
	if !ok {
		log.Fatal("开场白生成失败，详见日志")
	}
	cleaned, _ := relay.StripEndCall(greeting)
	log.Printf("开场白: %q", cleaned)
}

func runTTS(ctx context.Context, cfg *config.Config, httpClient *http.Client, text, speaker, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	client := speech.NewKurdishTTSClient(cfg.Speech.APIKey, cfg.Speech.APIURL, httpClient, nil)
	if !client.Enabled() {
		log.Fatal("KURDISH_TTS_API_KEY 未配置")
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.wav", time.Now().Unix())
	}

	log.Printf("开始进行 TTS 测试: speaker=%s", speaker)

	encoded, err := client.Synthesize(ctx, text, speaker)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		log.Fatalf("音频解码失败: %v", err)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s (%d bytes)", outputPath, len(audio))
}

func runASR(ctx context.Context, cfg *config.Config, httpClient *http.Client, audioPath, language string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	transcriber := speech.NewGeminiTranscriber(cfg.Transcription.APIKey, cfg.Transcription.Model, cfg.Transcription.BaseURL, httpClient, nil)
	svc := speech.NewService(nil, transcriber, cfg.Transcription.Language)

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(audioPath)))
	log.Printf("开始进行 ASR 测试: file=%s mime=%s", audioPath, mimeType)

	text, err := svc.TranscribeAudio(ctx, audio, mimeType, language)
	if err != nil {
		log.Fatalf("ASR 调用失败: %v", err)
	}

	log.Printf("ASR 识别成功: text=%q", text)
}
