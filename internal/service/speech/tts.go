package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

const ttsPath = "/api/v3/tts/unidirectional/stream"

// TTSClient synthesizes speech through the unidirectional streaming endpoint.
type TTSClient struct {
	cfg  *speechmodel.SpeechConfig
	dial DialOptions
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// NewTTSClient returns a client for cfg.
func NewTTSClient(cfg *speechmodel.SpeechConfig) *TTSClient {
	return &TTSClient{cfg: cfg, dial: DefaultDialOptions()}
}

// Synthesize renders req.Text. The requested voice is tried first, then the
// configured one; each speaker is tried against its candidate resources.
func (c *TTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("tts text is empty")
	}

	appKey, accessKey, err := credentials(c.cfg)
	if err != nil {
		return nil, err
	}

	format := audioFormat(req.Format)
	speakers := speakerCandidates(req.Voice, c.cfg.TTSVoice)
	if len(speakers) == 0 {
		return nil, errors.New("tts voice is not configured")
	}

	var lastMismatch error
	for i, speaker := range speakers {
		for j, resource := range resourceCandidates(speaker) {
			resp, err := c.synthesizeOnce(ctx, req, appKey, accessKey, speaker, resource, format)
			if err == nil {
				if i > 0 || j > 0 {
					log.Printf("[tts] fell back to voice %s with resource %s", speaker, resource)
				}
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			log.Printf("[tts] voice %s does not match resource %s: %v", speaker, resource, err)
			lastMismatch = err
		}
	}

	return nil, fmt.Errorf("no compatible resource for voices %v: %w", speakers, lastMismatch)
}

func (c *TTSClient) synthesizeOnce(
	ctx context.Context,
	req *speechmodel.TTSRequest,
	appKey, accessKey, speaker, resource, format string,
) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, err := dialWithRetry(ctx, c.dial, "tts", endpoint(c.cfg, ttsPath), header)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer closeOnDone(ctx, conn)()

	payload, err := sonic.Marshal(c.buildRequest(req, speaker, format))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}

	frame, err := NewClientRequest(payload, NoCompression).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read tts response: %w", err)
		}

		msg, err := ParseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tts frame: %w", err)
		}

		switch msg.Type {
		case ErrorMessage:
			body, _ := decompress(msg.Payload, msg.Compression)
			return nil, fmt.Errorf("tts error %d: %s", msg.ErrorCode, string(body))

		case AudioOnlyServerResponse:
			chunk, err := decompress(msg.Payload, msg.Compression)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress audio: %w", err)
			}
			audio.Write(chunk)

		case FullServerResponse:
			body, err := decompress(msg.Payload, msg.Compression)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress tts response: %w", err)
			}

			var server ttsServerMessage
			if len(body) > 0 {
				if err := sonic.Unmarshal(body, &server); err != nil {
					log.Printf("[tts] unreadable response payload: %v", err)
				}
			}
			if server.Code != 0 && server.Code != 3000 && server.Code != 20000000 {
				return nil, fmt.Errorf("tts error %d: %s", server.Code, server.Message)
			}
			if msg.hasEvent() && msg.Event == EventSessionFailed {
				return nil, fmt.Errorf("tts session failed: %s", string(body))
			}

			if server.ReqID != "" {
				reqID = server.ReqID
			}
			if server.Addition.Duration != "" {
				if ms, err := strconv.ParseInt(server.Addition.Duration, 10, 64); err == nil {
					duration = ms
				}
			}
			if server.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(server.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
				}
				audio.Write(chunk)
			}

			finished := (msg.hasEvent() && msg.Event == EventSessionFinished) || msg.Final() || server.Sequence < 0
			if !finished {
				continue
			}
			if audio.Len() == 0 {
				return nil, errors.New("tts audio is empty")
			}
			if reqID == "" {
				reqID = connectID
			}
			return &speechmodel.TTSResponse{
				SessionID:   req.SessionID,
				UtteranceID: req.UtteranceID,
				AudioData:   audio.Bytes(),
				Duration:    duration,
				Format:      format,
				RequestID:   reqID,
				CreatedAt:   time.Now(),
			}, nil

		default:
			log.Printf("[tts] ignoring frame type %d", msg.Type)
		}
	}
}

func (c *TTSClient) buildRequest(req *speechmodel.TTSRequest, speaker, format string) *ttsRequest {
	out := &ttsRequest{}

	out.User.UID = strings.TrimSpace(req.SessionID)
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}

	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams = ttsAudioParams{
		Format:          format,
		SampleRate:      24000,
		EnableTimestamp: true,
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.cfg.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.cfg.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.cfg.TTSLanguage)
	}
	out.ReqParams.Language = language
	out.ReqParams.Additions = `{"disable_markdown_filter":false}`

	return out
}

// audioFormat maps a requested container to one the service streams.
func audioFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pcm":
		return "pcm"
	case "ogg_opus", "opus":
		return "ogg_opus"
	default:
		return "mp3"
	}
}
