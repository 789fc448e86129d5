package speech

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/daniilk/voice-assistant/backend/internal/model/speech"
)

type fakeSpeechServer func(t *testing.T, r *http.Request, conn *websocket.Conn)

func startSpeechServer(t *testing.T, handle fakeSpeechServer) *speechmodel.SpeechConfig {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(t, r, conn)
	}))
	t.Cleanup(server.Close)

	return &speechmodel.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		BaseURL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		ASRModel:    "bigmodel",
		ASRLanguage: "en-US",
		TTSVoice:    "en_default",
		TTSSpeed:    1.0,
		TTSVolume:   1.0,
		TTSLanguage: "en-US",
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("server read: %v", err)
		return nil
	}
	frame, err := ParseFrame(data)
	if err != nil {
		t.Errorf("server parse: %v", err)
		return nil
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame *Frame) {
	t.Helper()
	data, _ := frame.MarshalBinary()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func TestTTSClientSynthesize(t *testing.T) {
	cfg := startSpeechServer(t, func(t *testing.T, r *http.Request, conn *websocket.Conn) {
		if r.URL.Path != ttsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "token" {
			t.Errorf("missing credentials headers")
		}

		req := readFrame(t, conn)
		if req == nil {
			return
		}
		var body ttsRequest
		if err := sonic.Unmarshal(req.Payload, &body); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if body.ReqParams.Text != "4" || body.ReqParams.Language != "en-US" {
			t.Errorf("unexpected request %+v", body.ReqParams)
		}
		if body.ReqParams.Speaker != "en_female_amy_jupiter_bigtts" {
			t.Errorf("unexpected speaker %s", body.ReqParams.Speaker)
		}

		writeFrame(t, conn, &Frame{Type: AudioOnlyServerResponse, Payload: []byte("ID3")})
		writeFrame(t, conn, &Frame{Type: AudioOnlyServerResponse, Payload: []byte("audio")})
		writeFrame(t, conn, &Frame{
			Type:          FullServerResponse,
			Flags:         WithEvent,
			Serialization: JSONSerialization,
			Event:         EventSessionFinished,
			SessionID:     "s",
			Payload:       []byte(`{"code":3000,"reqid":"req-1","addition":{"duration":"1200"}}`),
		})
	})

	client := NewTTSClient(cfg)
	resp, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{
		SessionID:   "session-1",
		UtteranceID: "Result",
		Text:        "4",
	})
	require.NoError(t, err)
	require.Equal(t, []byte("ID3audio"), resp.AudioData)
	require.Equal(t, "Result", resp.UtteranceID)
	require.Equal(t, "session-1", resp.SessionID)
	require.Equal(t, "mp3", resp.Format)
	require.Equal(t, "req-1", resp.RequestID)
	require.Equal(t, int64(1200), resp.Duration)
}

func TestTTSClientFallsBackOnResourceMismatch(t *testing.T) {
	var (
		mu        sync.Mutex
		resources []string
	)
	cfg := startSpeechServer(t, func(t *testing.T, r *http.Request, conn *websocket.Conn) {
		resource := r.Header.Get("X-Api-Resource-Id")
		mu.Lock()
		resources = append(resources, resource)
		mu.Unlock()
		if readFrame(t, conn) == nil {
			return
		}

		if resource == resourceSeed {
			writeFrame(t, conn, &Frame{
				Type:      ErrorMessage,
				ErrorCode: 45000000,
				Payload:   []byte(`{"error":"resource ID is mismatched with speaker related resource"}`),
			})
			return
		}
		writeFrame(t, conn, &Frame{Type: FullServerResponse, Flags: LastNoSequence, Payload: []byte(`{"code":0,"data":"bXAz"}`)})
	})

	resp, err := NewTTSClient(cfg).Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "Paris"})
	require.NoError(t, err)
	require.Equal(t, []byte("mp3"), resp.AudioData)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{resourceSeed, resourceDefault}, resources)
}

func TestTTSClientServerError(t *testing.T) {
	cfg := startSpeechServer(t, func(t *testing.T, r *http.Request, conn *websocket.Conn) {
		if readFrame(t, conn) == nil {
			return
		}
		writeFrame(t, conn, &Frame{Type: FullServerResponse, Payload: []byte(`{"code":45000001,"message":"quota exceeded"}`)})
	})

	_, err := NewTTSClient(cfg).Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "4"})
	require.ErrorContains(t, err, "quota exceeded")
}

func TestTTSClientRejectsEmptyText(t *testing.T) {
	_, err := NewTTSClient(&speechmodel.SpeechConfig{AppID: "a", AccessToken: "b"}).
		Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "  "})
	require.Error(t, err)
}

func TestTTSClientNotConfigured(t *testing.T) {
	_, err := NewTTSClient(&speechmodel.SpeechConfig{}).Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "4"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestASRClientTranscribe(t *testing.T) {
	audio := bytes.Repeat([]byte{0x01, 0x02}, 3500)

	cfg := startSpeechServer(t, func(t *testing.T, r *http.Request, conn *websocket.Conn) {
		if r.URL.Path != asrPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Resource-Id") != resourceASRDuration {
			t.Errorf("unexpected resource %s", r.Header.Get("X-Api-Resource-Id"))
		}

		req := readFrame(t, conn)
		if req == nil {
			return
		}
		payload, err := decompress(req.Payload, req.Compression)
		if err != nil {
			t.Errorf("decompress request: %v", err)
			return
		}
		var body asrRequest
		if err := sonic.Unmarshal(payload, &body); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if body.Audio.Language != "en-US" || body.Request.ModelName != "bigmodel" {
			t.Errorf("unexpected request %+v", body)
		}

		var received []byte
		for {
			frame := readFrame(t, conn)
			if frame == nil {
				return
			}
			chunk, _ := decompress(frame.Payload, frame.Compression)
			received = append(received, chunk...)
			if frame.Final() {
				break
			}
		}
		if !bytes.Equal(received, audio) {
			t.Errorf("server received %d bytes, want %d", len(received), len(audio))
		}

		result, _ := compress([]byte(`{"code":20000000,"sequence":-3,"result":{"text":"What is the capital of France?",
			"utterances":[{"text":"what is the capital of France","definite":true}]},"audio_info":{"duration":1000}}`), GzipCompression)
		writeFrame(t, conn, &Frame{
			Type:        FullServerResponse,
			Flags:       NegativeSequence,
			Sequence:    -3,
			Compression: GzipCompression,
			Payload:     result,
		})
	})

	client := NewASRClient(cfg)
	client.chunkInterval = time.Millisecond

	resp, err := client.Transcribe(context.Background(), &speechmodel.ASRRequest{
		SessionID: "session-1",
		AudioData: bytes.NewReader(audio),
		Format:    "wav",
	})
	require.NoError(t, err)
	require.Equal(t, "What is the capital of France?", resp.Text)
	require.Equal(t, []string{"What is the capital of France?", "what is the capital of France"}, resp.Alternatives)
	require.Equal(t, int64(1000), resp.Duration)
	require.Equal(t, "session-1", resp.SessionID)
}

func TestASRClientServerError(t *testing.T) {
	cfg := startSpeechServer(t, func(t *testing.T, r *http.Request, conn *websocket.Conn) {
		for {
			frame := readFrame(t, conn)
			if frame == nil {
				return
			}
			if frame.Type == AudioOnlyRequest && frame.Final() {
				break
			}
		}
		writeFrame(t, conn, &Frame{Type: ErrorMessage, ErrorCode: 45000151, Payload: []byte("audio format invalid")})
	})

	client := NewASRClient(cfg)
	client.chunkInterval = time.Millisecond

	_, err := client.Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: bytes.NewReader([]byte("abc"))})
	require.ErrorContains(t, err, "audio format invalid")
}

func TestASRClientRejectsEmptyAudio(t *testing.T) {
	client := NewASRClient(&speechmodel.SpeechConfig{AppID: "a", AccessToken: "b"})
	_, err := client.Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: bytes.NewReader(nil)})
	require.Error(t, err)
}

func TestTranscriptAlternatives(t *testing.T) {
	require.Nil(t, transcriptAlternatives("", nil))
	require.Equal(t, []string{"hello"}, transcriptAlternatives("hello", []asrUtterance{{Text: "hello", Definite: true}}))
	require.Equal(t, []string{"a b"}, transcriptAlternatives("", []asrUtterance{
		{Text: "a", Definite: true},
		{Text: "pending", Definite: false},
		{Text: "b", Definite: true},
	}))
}

func TestServiceReady(t *testing.T) {
	require.False(t, NewService(nil).Ready())
	require.False(t, NewService(&speechmodel.SpeechConfig{AppID: "app"}).Ready())
	require.True(t, NewService(&speechmodel.SpeechConfig{AppID: "app", APIKey: "key"}).Ready())
}

func TestEndpoint(t *testing.T) {
	require.Equal(t, defaultEndpoint+ttsPath, endpoint(&speechmodel.SpeechConfig{}, ttsPath))
	require.Equal(t, "ws://localhost:9000"+asrPath, endpoint(&speechmodel.SpeechConfig{BaseURL: "ws://localhost:9000/"}, asrPath))
}

type fakeTranscriber struct {
	resp *speechmodel.ASRResponse
	err  error
	got  []byte
}

func (f *fakeTranscriber) TranscribeBuffer(_ context.Context, _ string, audio []byte, _, _ string) (*speechmodel.ASRResponse, error) {
	f.got = audio
	return f.resp, f.err
}

func TestBufferedVoiceListen(t *testing.T) {
	transcriber := &fakeTranscriber{resp: &speechmodel.ASRResponse{Text: "2+2", Alternatives: []string{"2+2", "two plus two"}}}
	voice := &BufferedVoice{Transcriber: transcriber, Audio: []byte("wav")}

	alternatives, err := voice.Listen(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"2+2", "two plus two"}, alternatives)
	require.Equal(t, []byte("wav"), transcriber.got)

	voice.Transcriber = &fakeTranscriber{resp: &speechmodel.ASRResponse{Text: "only text"}}
	alternatives, err = voice.Listen(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"only text"}, alternatives)

	voice.Transcriber = &fakeTranscriber{err: errors.New("asr down")}
	_, err = voice.Listen(context.Background())
	require.EqualError(t, err, "asr down")

	empty := &BufferedVoice{Transcriber: transcriber}
	alternatives, err = empty.Listen(context.Background())
	require.NoError(t, err)
	require.Empty(t, alternatives)

	_, err = (&BufferedVoice{Audio: []byte("wav")}).Listen(context.Background())
	require.Error(t, err)
}
