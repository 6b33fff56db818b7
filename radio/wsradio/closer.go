package wsradio

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/m-lab/linkbench/logging"
)

// startClosing tells the other end that this radio is going away.
func startClosing(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Radio deactivated")
	d := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, msg, d); err != nil {
		logging.Logger.WithError(err).Debug("wsradio: cannot send Close message")
		return
	}
	logging.Logger.Debug("wsradio: sending Close message")
}
