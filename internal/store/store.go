package store

import (
	"context"
	"time"

	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/internal/observability"
	"github.com/404minds/obd-receiver/internal/types"
	"go.uber.org/zap"
)

var logger = configuredLogger.Logger

const (
	queueSize    = 200
	writeTimeout = 5 * time.Second
)

type Store interface {
	Process(ctx context.Context)
	GetProcessChan() chan types.DeviceStatus
	GetCloseChan() chan bool
}

// queue is the channel pair every store is fed through.
type queue struct {
	ProcessChan chan types.DeviceStatus
	CloseChan   chan bool
}

func newQueue() queue {
	return queue{
		ProcessChan: make(chan types.DeviceStatus, queueSize),
		CloseChan:   make(chan bool, 1),
	}
}

func (q *queue) GetProcessChan() chan types.DeviceStatus {
	return q.ProcessChan
}

func (q *queue) GetCloseChan() chan bool {
	return q.CloseChan
}

// drain hands queued records to save until the store is closed or ctx ends.
// Records still queued at close time are flushed first.
func (q *queue) drain(ctx context.Context, name string, save func(context.Context, types.DeviceStatus) error) {
	write := func(status types.DeviceStatus) {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()

		err := save(writeCtx, status)
		observability.StoreWrite(name, err)
		if err != nil {
			logger.Error("failed to save device status",
				zap.String("store", name), zap.String("deviceId", status.DeviceID), zap.Error(err))
		}
	}

	for {
		select {
		case status := <-q.ProcessChan:
			write(status)
		case <-q.CloseChan:
			for {
				select {
				case status := <-q.ProcessChan:
					write(status)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
