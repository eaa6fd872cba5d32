package handlers

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	errs "github.com/404minds/obd-receiver/internal/errors"
	"github.com/404minds/obd-receiver/internal/observability"
	"github.com/404minds/obd-receiver/internal/protocols"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/404minds/obd-receiver/internal/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const BUFFER_SIZE = 4096 // bytes

// a device has this long to send its first frame
const defaultLoginTimeout = time.Minute

type tcpHandler struct {
	mu                sync.Mutex
	connToProtocolMap map[string]protocols.DeviceProtocol // make this an LRU cache to evict stale connections
	connToStoreMap    map[string]store.Store
	allowedProtocols  []types.DeviceProtocolType
	backends          *store.Backends
	protocolOptions   protocols.Options
	loginTimeout      time.Duration
}

func (t *tcpHandler) HandleConnection(conn net.Conn) {
	defer conn.Close()
	observability.Connections.WithLabelValues("tcp").Inc()

	remoteAddr := conn.RemoteAddr().String()
	sessionID := newSessionID()
	reader := bufio.NewReaderSize(conn, BUFFER_SIZE)

	if err := conn.SetReadDeadline(time.Now().Add(t.loginTimeout)); err != nil {
		logger.Error("failed to set login deadline", zap.String("remoteAddr", remoteAddr), zap.Error(err))
		return
	}
	deviceProtocol, ack, err := t.attemptDeviceLogin(reader, sessionID)
	if err != nil {
		logger.Error("failed to identify device", zap.String("remoteAddr", remoteAddr), zap.Error(err))
		return
	}
	observability.LoginsOK.Inc()
	logger.Info("device connected",
		zap.String("deviceId", deviceProtocol.GetDeviceID()),
		zap.String("sessionId", sessionID),
		zap.String("remoteAddr", remoteAddr))

	dataStore, stopStore, err := startStore(t.backends, deviceProtocol.GetDeviceID())
	if err != nil {
		logger.Error("failed to create data store", zap.String("deviceId", deviceProtocol.GetDeviceID()), zap.Error(err))
		return
	}
	defer stopStore()

	t.track(remoteAddr, deviceProtocol, dataStore)
	defer t.untrack(remoteAddr)

	if len(ack) > 0 {
		if _, err := conn.Write(ack); err != nil {
			logger.Error("failed to send login ack", zap.Error(err))
			return
		}
	}

	err = deviceProtocol.ConsumeStream(reader, conn, dataStore)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("error reading from connection", zap.String("remoteAddr", remoteAddr), zap.Error(err))
		return
	}
	logger.Info("connection closed", zap.String("remoteAddr", remoteAddr), zap.String("sessionId", sessionID))
}

func (t *tcpHandler) track(addr string, p protocols.DeviceProtocol, s store.Store) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connToProtocolMap[addr] = p
	t.connToStoreMap[addr] = s
}

func (t *tcpHandler) untrack(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connToProtocolMap, addr)
	delete(t.connToStoreMap, addr)
}

// ConnectedDevices returns the device ids of open TCP sessions.
func (t *tcpHandler) ConnectedDevices() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.connToProtocolMap))
	for _, p := range t.connToProtocolMap {
		ids = append(ids, p.GetDeviceID())
	}
	return ids
}

func (t *tcpHandler) attemptDeviceLogin(reader *bufio.Reader, sessionID string) (protocols.DeviceProtocol, []byte, error) {
	opts := t.protocolOptions
	opts.SessionID = sessionID
	opts.Source = "tcp"

	for _, protocolType := range t.allowedProtocols {
		protocol := protocols.MakeProtocolForType(protocolType, opts)
		if protocol == nil {
			continue
		}
		ack, bytesConsumed, err := protocol.Login(reader)
		if err != nil {
			logger.Debug("login attempt failed", zap.Stringer("protocol", protocolType), zap.Error(err))
			continue // try another protocol
		}

		// discard bytes consumed by login since we already have a final protocol that worked
		logger.Sugar().Infof("Device identified to be of protocol %s with identifier %s", protocolType, protocol.GetDeviceID())
		if _, err := reader.Discard(bytesConsumed); err != nil {
			return nil, nil, err
		}
		return protocol, ack, nil
	}

	return nil, nil, errs.ErrUnknownDeviceType
}
