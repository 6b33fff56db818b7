package wsradio

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// The JSON object namespaces our ping payloads, so that unsolicited pong
// frames (which RFC6455 section 5.5.3 allows) are not mistaken for replies.
type pingMessage struct {
	LinkbenchTS int64
}

// sendTicks sends the time elapsed since start as a ping message.
func sendTicks(conn *websocket.Conn, start time.Time, deadline time.Time) error {
	msg := pingMessage{
		LinkbenchTS: time.Since(start).Nanoseconds(),
	}
	data, err := json.Marshal(msg)
	if err == nil {
		err = conn.WriteControl(websocket.PingMessage, data, deadline)
	}
	return err
}

// parseTicks returns the round trip time of the ping echoed in s.
func parseTicks(s string, start time.Time) (time.Duration, error) {
	elapsed := time.Since(start)
	var msg pingMessage
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return 0, err
	}
	prev := msg.LinkbenchTS
	if prev < 0 || prev > elapsed.Nanoseconds() {
		return 0, errors.New("RTT is negative")
	}
	return time.Duration(elapsed.Nanoseconds() - prev), nil
}
