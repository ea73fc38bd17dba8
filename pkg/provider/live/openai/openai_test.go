package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/guardianvoice/maya/pkg/provider/live"
	"github.com/guardianvoice/maya/pkg/provider/live/openai"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

func nextEvent(t *testing.T, handle live.SessionHandle) live.Event {
	t.Helper()
	select {
	case ev, ok := <-handle.Events():
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestConnectSendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type update struct {
		Type    string `json:"type"`
		Session struct {
			Voice                   string `json:"voice"`
			Instructions            string `json:"instructions"`
			InputAudioFormat        string `json:"input_audio_format"`
			OutputAudioFormat       string `json:"output_audio_format"`
			InputAudioTranscription *struct {
				Model string `json:"model"`
			} `json:"input_audio_transcription"`
		} `json:"session"`
	}

	updateCh := make(chan update, 1)
	authCh := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		var msg update
		readJSON(t, conn, &msg)
		updateCh <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("secret-key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{
		Voice:        "sage",
		Instructions: "be kind",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-updateCh:
		if msg.Type != "session.update" {
			t.Errorf("type = %q", msg.Type)
		}
		if msg.Session.Voice != "sage" || msg.Session.Instructions != "be kind" {
			t.Errorf("session = %+v", msg.Session)
		}
		if msg.Session.InputAudioFormat != "pcm16" || msg.Session.OutputAudioFormat != "pcm16" {
			t.Errorf("audio formats = %q/%q, want pcm16", msg.Session.InputAudioFormat, msg.Session.OutputAudioFormat)
		}
		if msg.Session.InputAudioTranscription == nil {
			t.Error("input transcription must be enabled")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}

	if got := <-authCh; got != "Bearer secret-key" {
		t.Errorf("authorization = %q", got)
	}
}

func TestServerEventsDispatch(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // session.update
		writeJSON(t, conn, map[string]any{"type": "session.created"})
		writeJSON(t, conn, map[string]any{"type": "response.audio.delta", "delta": "AAEC"})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "sure, "})
		writeJSON(t, conn, map[string]any{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "tell me a story",
		})
		writeJSON(t, conn, map[string]any{"type": "input_audio_buffer.speech_started"})
		writeJSON(t, conn, map[string]any{"type": "response.done"})
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if _, ok := nextEvent(t, handle).(live.Opened); !ok {
		t.Fatal("expected Opened")
	}
	if chunk, ok := nextEvent(t, handle).(live.AudioChunk); !ok || chunk.Media != "AAEC" {
		t.Fatalf("expected AudioChunk, got %#v", chunk)
	}
	if frag, ok := nextEvent(t, handle).(live.TranscriptFragment); !ok || frag.Speaker != live.SpeakerModel {
		t.Fatalf("expected model fragment, got %#v", frag)
	}
	if frag, ok := nextEvent(t, handle).(live.TranscriptFragment); !ok || frag.Speaker != live.SpeakerUser || frag.Text != "tell me a story" {
		t.Fatalf("expected user fragment, got %#v", frag)
	}
	if _, ok := nextEvent(t, handle).(live.Interrupted); !ok {
		t.Fatal("expected Interrupted for speech_started")
	}
	if _, ok := nextEvent(t, handle).(live.TurnComplete); !ok {
		t.Fatal("expected TurnComplete for response.done")
	}
}

func TestErrorEventCarriesMessage(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "server_error", "message": "overloaded"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	ev, ok := nextEvent(t, handle).(live.SessionError)
	if !ok || ev.Err == nil || !strings.Contains(ev.Err.Error(), "overloaded") {
		t.Fatalf("expected SessionError with message, got %#v", ev)
	}
}

func TestSendAudioAppendsBuffer(t *testing.T) {
	t.Parallel()

	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}

	appendCh := make(chan appendMsg, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		var msg appendMsg
		readJSON(t, conn, &msg)
		appendCh <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if err := handle.SendAudio("UENN"); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-appendCh:
		if msg.Type != "input_audio_buffer.append" || msg.Audio != "UENN" {
			t.Fatalf("append = %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for append")
	}
}
