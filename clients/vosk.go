package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// VoskConn speaks the vosk-server websocket protocol: a JSON config message,
// binary PCM frames each answered by a partial or final result, then an
// eof message answered by the last result.
type VoskConn struct {
	conn *websocket.Conn
	last []byte
}

type voskConfig struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
		Words      int `json:"words"`
	} `json:"config"`
}

// DialVosk opens a recognizer session at url (ws://host:2700) for PCM at
// sampleRate, with per-word timings enabled.
func DialVosk(ctx context.Context, url string, sampleRate int) (*VoskConn, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk dial %s: %w", url, err)
	}
	var cfg voskConfig
	cfg.Config.SampleRate = sampleRate
	cfg.Config.Words = 1
	if err := conn.WriteJSON(cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vosk config: %w", err)
	}
	return &VoskConn{conn: conn}, nil
}

// AcceptWaveform sends one PCM chunk. It reports true when the server
// answered with a final result for an utterance, available via Result.
func (v *VoskConn) AcceptWaveform(pcm []byte) (bool, error) {
	if err := v.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return false, fmt.Errorf("vosk send: %w", err)
	}
	_, msg, err := v.conn.ReadMessage()
	if err != nil {
		return false, fmt.Errorf("vosk read: %w", err)
	}
	var probe struct {
		Partial *string `json:"partial"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return false, fmt.Errorf("vosk decode: %w", err)
	}
	if probe.Partial != nil {
		return false, nil
	}
	v.last = msg
	return true, nil
}

// Result returns the last final result JSON.
func (v *VoskConn) Result() []byte { return v.last }

// FinalResult flushes the recognizer and returns the trailing result JSON.
func (v *VoskConn) FinalResult() ([]byte, error) {
	if err := v.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return nil, fmt.Errorf("vosk eof: %w", err)
	}
	_, msg, err := v.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("vosk final: %w", err)
	}
	return msg, nil
}

func (v *VoskConn) Close() error {
	_ = v.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return v.conn.Close()
}
