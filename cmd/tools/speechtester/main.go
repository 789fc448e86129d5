package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/daniilk/voice-assistant/backend/internal/config"
	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
	"github.com/daniilk/voice-assistant/backend/internal/service/assistant"
	"github.com/daniilk/voice-assistant/backend/internal/service/speech"
	"github.com/daniilk/voice-assistant/backend/internal/service/wolfram"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	mode := flag.String("mode", "", "test mode: asr, tts or ask")
	audioPath := flag.String("audio", "", "ASR input audio file")
	text := flag.String("text", "", "TTS text or ask question")
	outputPath := flag.String("out", "", "TTS output file (derived from the format by default)")
	format := flag.String("format", "", "audio format (ASR: input, TTS: output)")
	language := flag.String("lang", "", "language code, defaults to the configured language")
	voice := flag.String("voice", "", "TTS voice id, defaults to SPEECH_TTS_VOICE")
	session := flag.String("session", "", "session id, generated when empty")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" && *mode != "ask" {
		flag.Usage()
		log.Fatal("select a test mode with -mode=asr, -mode=tts or -mode=ask")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *mode == "ask" {
		runAsk(ctx, cfg, *text)
		return
	}

	if !cfg.Speech.Enabled {
		log.Fatal("speech is not configured, set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}
	svc := speech.NewService(cfg.Speech.ServiceConfig())

	switch *mode {
	case "asr":
		runASR(ctx, svc, cfg, sessionID, *audioPath, *format, *language)
	case "tts":
		runTTS(ctx, svc, cfg, sessionID, *text, *voice, *format, *language, *outputPath)
	}
}

func runAsk(ctx context.Context, cfg *config.Config, question string) {
	if strings.TrimSpace(question) == "" {
		log.Fatal("ask mode needs a question in -text")
	}

	client, err := wolfram.NewClientFromConfig(ctx, cfg.Wolfram, wolfram.EnvironmentStore)
	if err != nil {
		log.Fatalf("failed to create query client: %v", err)
	}

	res, err := client.Query(ctx, question)
	outcome := assistant.Evaluate(res, err)
	log.Printf("query finished: phase=%s", outcome.Phase)
	if msg := outcome.Message(); msg != "" {
		fmt.Println(msg)
	}
	for _, row := range outcome.Rows {
		fmt.Printf("%s\n  %s\n", row.Title, strings.ReplaceAll(row.Content, "\n", "\n  "))
	}
}

func runASR(ctx context.Context, svc *speech.Service, cfg *config.Config, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("asr mode needs an audio file in -audio")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.Fatalf("failed to open audio file: %v", err)
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}

	if language == "" {
		language = cfg.Speech.ASRLanguage
	}

	req := &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  language,
	}

	log.Printf("starting ASR test: session=%s format=%s language=%s", sessionID, format, language)

	resp, err := svc.TranscribeAudio(ctx, req)
	if err != nil {
		log.Fatalf("ASR failed: %v", err)
	}

	log.Printf("ASR succeeded: text=%q alternatives=%d duration=%dms", resp.Text, len(resp.Alternatives), resp.Duration)
	for i, alt := range resp.Alternatives {
		fmt.Printf("%d. %s\n", i+1, alt)
	}
}

func runTTS(ctx context.Context, svc *speech.Service, cfg *config.Config, sessionID, text, voice, format, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("tts mode needs text in -text")
	}

	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}

	if language == "" {
		language = cfg.Speech.TTSLanguage
	}

	if format == "" {
		format = "mp3"
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	req := &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
		Language:  language,
	}

	log.Printf("starting TTS test: session=%s voice=%s format=%s", sessionID, voice, format)

	resp, err := svc.SynthesizeSpeech(ctx, req)
	if err != nil {
		log.Fatalf("TTS failed: %v", err)
	}

	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		log.Fatalf("failed to write audio file: %v", err)
	}

	log.Printf("TTS succeeded: wrote %s, duration=%dms", outputPath, resp.Duration)
}
