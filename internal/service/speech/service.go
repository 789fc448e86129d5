package speech

import (
	"bytes"
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

const defaultEndpoint = "wss://openspeech.bytedance.com"

// Service is the entry point for speech recognition and synthesis.
type Service struct {
	config *speechmodel.SpeechConfig
	tts    *TTSClient
	asr    *ASRClient
	tracer trace.Tracer
}

// NewService builds the speech clients for config.
func NewService(config *speechmodel.SpeechConfig) *Service {
	if config == nil {
		config = &speechmodel.SpeechConfig{}
	}
	return &Service{
		config: config,
		tts:    NewTTSClient(config),
		asr:    NewASRClient(config),
		tracer: otel.Tracer("speech"),
	}
}

// Ready reports whether credentials are present. It does not contact the service.
func (s *Service) Ready() bool {
	_, _, err := credentials(s.config)
	return err == nil
}

// TranscribeAudio recognizes the audio in req.
func (s *Service) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	ctx, span := s.tracer.Start(ctx, "speech.transcribe", trace.WithAttributes(
		attribute.String("speech.format", req.Format),
		attribute.String("speech.language", req.Language),
	))
	defer span.End()

	resp, err := s.asr.Transcribe(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("speech.alternatives", len(resp.Alternatives)))
	return resp, nil
}

// TranscribeBuffer recognizes an in-memory recording.
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error) {
	return s.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audio),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeSpeech renders req to audio.
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	ctx, span := s.tracer.Start(ctx, "speech.synthesize", trace.WithAttributes(
		attribute.String("speech.utterance_id", req.UtteranceID),
		attribute.Int("speech.text_length", len(req.Text)),
	))
	defer span.End()

	resp, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("speech.audio_bytes", len(resp.AudioData)))
	return resp, nil
}

func endpoint(cfg *speechmodel.SpeechConfig, path string) string {
	base := defaultEndpoint
	if cfg != nil && strings.TrimSpace(cfg.BaseURL) != "" {
		base = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}
	return base + path
}
