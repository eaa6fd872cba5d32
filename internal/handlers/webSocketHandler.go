package handlers

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/404minds/obd-receiver/internal/observability"
	"github.com/404minds/obd-receiver/internal/protocols"
	"github.com/404minds/obd-receiver/internal/protocols/sinocastel"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/404minds/obd-receiver/internal/types"
	codec "github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler accepts one packet per message. Binary messages carry the
// raw frame, text messages its hex encoding.
type WebSocketHandler struct {
	backends        *store.Backends
	protocolOptions protocols.Options
	upgrader        websocket.Upgrader
}

func (w *WebSocketHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	w.HandleMessage(conn)
}

// HandleMessage reads messages until the peer goes away.
func (w *WebSocketHandler) HandleMessage(conn *websocket.Conn) {
	defer conn.Close()
	observability.Connections.WithLabelValues("ws").Inc()

	opts := w.protocolOptions
	opts.SessionID = newSessionID()
	opts.Source = "ws"
	deviceProtocol := protocols.MakeProtocolForType(types.DeviceProtocolType_SINOCASTEL_OBD, opts).(*sinocastel.SinocastelProtocol)

	var dataStore store.Store
	var stopStore func()
	defer func() {
		if stopStore != nil {
			stopStore()
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("websocket connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		frame := messageBytes(messageType, message)
		if dataStore == nil {
			deviceID := codec.PeekDeviceID(frame)
			if deviceID == "" {
				logger.Warn("websocket message without device id", zap.Int("bytes", len(frame)))
				continue
			}
			deviceProtocol.DeviceID = deviceID
			deviceProtocol.DeviceType = types.DeviceType_SINOCASTEL

			dataStore, stopStore, err = startStore(w.backends, deviceID)
			if err != nil {
				logger.Error("failed to create data store", zap.String("deviceId", deviceID), zap.Error(err))
				return
			}
			observability.LoginsOK.Inc()
			logger.Info("websocket device connected", zap.String("deviceId", deviceID), zap.String("sessionId", opts.SessionID))
		}

		if err := deviceProtocol.ProcessFrame(frame, dataStore); err != nil {
			logger.Warn("websocket frame rejected", zap.String("deviceId", deviceProtocol.DeviceID), zap.Error(err))
		}
	}
}

func messageBytes(messageType int, message []byte) []byte {
	if messageType != websocket.TextMessage {
		return message
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(message)))
	if err != nil {
		return message
	}
	return decoded
}
