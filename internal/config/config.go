package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultWolframAppID is the application id shipped with the assistant.
const DefaultWolframAppID = "TUQAA6-8K6A8JLELV"

// Config aggregates every configuration section of the assistant.
type Config struct {
	Server    ServerConfig
	Wolfram   WolframConfig
	Speech    SpeechConfig
	Voice     VoiceConfig
	Telemetry TelemetryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	wolfram, err := loadWolframConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Wolfram:   wolfram,
		Speech:    speech,
		Voice:     loadVoiceConfig(),
		Telemetry: telemetry,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are accepted as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// WolframConfig describes the knowledge query service.
type WolframConfig struct {
	AppID string
	// AppIDParam names an SSM parameter holding the app id. When set it wins over AppID.
	AppIDParam string
	BaseURL    string
	Format     string
	Timeout    time.Duration
}

func loadWolframConfig() (WolframConfig, error) {
	timeout, err := parseOptionalIntEnv("WOLFRAM_TIMEOUT")
	if err != nil {
		return WolframConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		if *timeout < 1 {
			return WolframConfig{}, fmt.Errorf("invalid WOLFRAM_TIMEOUT value %d: must be positive", *timeout)
		}
		timeoutSeconds = *timeout
	}

	return WolframConfig{
		AppID:      getEnvOrDefault("WOLFRAM_APP_ID", DefaultWolframAppID),
		AppIDParam: strings.TrimSpace(os.Getenv("WOLFRAM_APP_ID_PARAM")),
		BaseURL:    getEnvOrDefault("WOLFRAM_BASE_URL", "https://api.wolframalpha.com"),
		Format:     getEnvOrDefault("WOLFRAM_FORMAT", "plaintext"),
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// SpeechConfig describes the speech recognition and synthesis services.
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Region         string
	BaseURL        string
	ConcurrentMode bool
	ASRModel       string
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
	Timeout        int
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		AppID:          appID,
		AccessToken:    accessToken,
		APIKey:         apiKey,
		AccessKey:      strings.TrimSpace(os.Getenv("SPEECH_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY")),
		Region:         getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", ""),
		ConcurrentMode: concurrent,
		ASRModel:       getEnvOrDefault("SPEECH_ASR_MODEL", "bigmodel"),
		ASRLanguage:    NormalizeLanguage(getEnvOrDefault("SPEECH_ASR_LANGUAGE", "us-US")),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", "en_default"),
		TTSSpeed:       ttsSpeed,
		TTSVolume:      ttsVolume,
		TTSLanguage:    NormalizeLanguage(getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US")),
		Timeout:        timeoutSeconds,
		Enabled:        appID != "" && accessToken != "",
	}, nil
}

// VoiceConfig describes the local audio commands used by the terminal client.
type VoiceConfig struct {
	Language  string
	RecordCmd []string
	PlayerCmd []string
}

func loadVoiceConfig() VoiceConfig {
	return VoiceConfig{
		Language:  NormalizeLanguage(getEnvOrDefault("VOICE_LANGUAGE", "us-US")),
		RecordCmd: strings.Fields(getEnvOrDefault("VOICE_RECORD_CMD", "arecord -q -f S16_LE -r 16000 -c 1 -d 5 -t wav -")),
		PlayerCmd: strings.Fields(getEnvOrDefault("VOICE_PLAYER_CMD", "ffplay -nodisp -autoexit -loglevel quiet")),
	}
}

// TelemetryConfig describes log rotation and OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool
	LogDir      string
	LogFile     string
	ServiceName string
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("TELEMETRY_ENABLED", true)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		Enabled:     enabled,
		LogDir:      getEnvOrDefault("LOG_DIR", "logs"),
		LogFile:     getEnvOrDefault("LOG_FILE", "assistant.log"),
		ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "voice-assistant"),
	}, nil
}

// NormalizeLanguage maps the recognizer tag "us-US" used by older clients to "en-US".
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if strings.EqualFold(lang, "us-US") {
		return "en-US"
	}
	return lang
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
