package handlers

import (
	"context"

	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/internal/protocols"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/404minds/obd-receiver/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var logger = configuredLogger.Logger

func NewTcpHandler(backends *store.Backends, opts protocols.Options) *tcpHandler {
	return &tcpHandler{
		connToProtocolMap: make(map[string]protocols.DeviceProtocol),
		connToStoreMap:    make(map[string]store.Store),
		allowedProtocols:  []types.DeviceProtocolType{types.DeviceProtocolType_SINOCASTEL_OBD}, // registered protocols can be made configurable
		backends:          backends,
		protocolOptions:   opts,
		loginTimeout:      defaultLoginTimeout,
	}
}

func NewWebSocketHandler(backends *store.Backends, opts protocols.Options) *WebSocketHandler {
	return &WebSocketHandler{
		backends:        backends,
		protocolOptions: opts,
	}
}

func newSessionID() string {
	return uuid.NewString()
}

// startStore builds the store for deviceID and runs it until the returned
// stop func is called.
func startStore(backends *store.Backends, deviceID string) (store.Store, func(), error) {
	dataStore, err := backends.NewStore(deviceID)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dataStore.Process(ctx)
		close(done)
	}()

	stop := func() {
		dataStore.GetCloseChan() <- true
		<-done
		cancel()
		logger.Debug("store stopped", zap.String("deviceId", deviceID))
	}
	return dataStore, stop, nil
}
