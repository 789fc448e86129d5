package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

const (
	asrPath = "/api/v3/sauc/bigmodel_nostream"

	resourceASRDuration   = "volc.bigasr.sauc.duration"
	resourceASRConcurrent = "volc.bigasr.sauc.concurrent"

	// 200ms of 16kHz 16-bit mono audio.
	asrChunkSize     = 6400
	asrChunkInterval = 200 * time.Millisecond
)

// ASRClient transcribes buffered audio through the bigmodel recognizer.
type ASRClient struct {
	cfg           *speechmodel.SpeechConfig
	dial          DialOptions
	chunkInterval time.Duration
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// NewASRClient returns a client for cfg.
func NewASRClient(cfg *speechmodel.SpeechConfig) *ASRClient {
	return &ASRClient{cfg: cfg, dial: DefaultDialOptions(), chunkInterval: asrChunkInterval}
}

// Transcribe streams req.AudioData in real-time sized chunks and waits for
// the final transcript.
func (c *ASRClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if req == nil || req.AudioData == nil {
		return nil, errors.New("no audio data")
	}
	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("no audio data")
	}

	appKey, accessKey, err := credentials(c.cfg)
	if err != nil {
		return nil, err
	}

	connectID := strings.TrimSpace(req.SessionID)
	if connectID == "" {
		connectID = uuid.NewString()
	}

	resource := resourceASRDuration
	if c.cfg.ConcurrentMode {
		resource = resourceASRConcurrent
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, err := dialWithRetry(ctx, c.dial, "asr", endpoint(c.cfg, asrPath), header)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer closeOnDone(ctx, conn)()

	payload, err := sonic.Marshal(c.buildRequest(req, connectID))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal asr request: %w", err)
	}
	compressed, err := compress(payload, GzipCompression)
	if err != nil {
		return nil, err
	}
	frame, err := NewClientRequest(compressed, GzipCompression).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode asr request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send asr request: %w", err)
	}

	// Results are read concurrently so an early server error stops the upload.
	type result struct {
		resp *speechmodel.ASRResponse
		err  error
	}
	recv := make(chan result, 1)
	go func() {
		resp, err := c.receive(ctx, conn, connectID)
		recv <- result{resp: resp, err: err}
	}()

	sent := make(chan error, 1)
	go func() {
		sent <- c.sendAudio(ctx, conn, audio)
	}()

	for {
		select {
		case err := <-sent:
			if err != nil {
				cancel()
				return nil, fmt.Errorf("failed to send audio: %w", err)
			}
			sent = nil
		case r := <-recv:
			return r.resp, r.err
		}
	}
}

func (c *ASRClient) buildRequest(req *speechmodel.ASRRequest, uid string) *asrRequest {
	out := &asrRequest{}
	out.User.UID = uid

	out.Audio.Format = strings.TrimSpace(req.Format)
	if out.Audio.Format == "" {
		out.Audio.Format = "wav"
	}
	out.Audio.Language = strings.TrimSpace(req.Language)
	if out.Audio.Language == "" {
		out.Audio.Language = c.cfg.ASRLanguage
	}
	out.Audio.Codec = "raw"
	out.Audio.Rate = 16000
	out.Audio.Bits = 16
	out.Audio.Channel = 1

	out.Request.ModelName = c.cfg.ASRModel
	if out.Request.ModelName == "" {
		out.Request.ModelName = "bigmodel"
	}
	out.Request.EnableITN = true
	out.Request.EnablePunc = true
	out.Request.ShowUtterances = true
	out.Request.ResultType = "full"
	out.Request.EndWindowSize = 800

	return out
}

// sendAudio uploads audio in chunks numbered from 2; the request frame is 1.
func (c *ASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := compress(audio[start:end], GzipCompression)
		if err != nil {
			return err
		}
		frame, err := NewAudioFrame(chunk, sequence, last, GzipCompression).MarshalBinary()
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return err
		}
		if last {
			return nil
		}
		sequence++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.chunkInterval):
		}
	}
	return nil
}

func (c *ASRClient) receive(ctx context.Context, conn *websocket.Conn, sessionID string) (*speechmodel.ASRResponse, error) {
	var (
		text       string
		utterances []asrUtterance
		duration   int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read asr response: %w", err)
		}

		msg, err := ParseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode asr frame: %w", err)
		}

		switch msg.Type {
		case ErrorMessage:
			body, _ := decompress(msg.Payload, msg.Compression)
			return nil, fmt.Errorf("asr error %d: %s", msg.ErrorCode, string(body))

		case FullServerResponse:
			body, err := decompress(msg.Payload, msg.Compression)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress asr response: %w", err)
			}

			var server asrServerMessage
			if err := sonic.Unmarshal(body, &server); err != nil {
				log.Printf("[asr] unreadable response payload: %v", err)
				continue
			}
			if server.Code != 0 && server.Code != 20000000 {
				return nil, fmt.Errorf("asr error %d: %s", server.Code, server.Message)
			}

			if server.Result.Text != "" {
				text = server.Result.Text
			}
			if len(server.Result.Utterances) > 0 {
				utterances = server.Result.Utterances
			}
			if server.AudioInfo.Duration > 0 {
				duration = server.AudioInfo.Duration
			}

			if msg.Final() || server.Sequence < 0 {
				alternatives := transcriptAlternatives(text, utterances)
				if len(alternatives) == 0 {
					log.Printf("[asr] empty transcript for session %s", sessionID)
				}
				resp := &speechmodel.ASRResponse{
					SessionID:    sessionID,
					Alternatives: alternatives,
					Duration:     duration,
					RequestID:    sessionID,
					CreatedAt:    time.Now(),
				}
				if len(alternatives) > 0 {
					resp.Text = alternatives[0]
					resp.Confidence = 0.95
				}
				return resp, nil
			}

		default:
			// audio acks carry nothing we use
		}
	}
}

// transcriptAlternatives returns the full transcript followed by the
// definite utterances joined, when that reads differently.
func transcriptAlternatives(text string, utterances []asrUtterance) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(text)

	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if u.Definite || len(utterances) == 1 {
			parts = append(parts, strings.TrimSpace(u.Text))
		}
	}
	add(strings.Join(parts, " "))

	return out
}
