package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obd_connections_total",
		Help: "Device connections accepted, by transport",
	}, []string{"transport"})
	LoginsOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obd_logins_total",
		Help: "Connections identified as a known device",
	})
	FramesRecv = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obd_frames_received_total",
		Help: "Frames read from device streams",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obd_frames_dropped_total",
		Help: "Frames not forwarded to a store",
	}, []string{"reason"})
	ResyncBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obd_resync_bytes_total",
		Help: "Bytes skipped while looking for a frame head",
	})
	PacketsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obd_packets_decoded_total",
		Help: "Decoded packets by protocol id",
	}, []string{"protocol_id"})
	CrcMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obd_crc_mismatch_total",
		Help: "Packets whose CRC did not verify",
	})
	IncompletePayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obd_incomplete_payloads_total",
		Help: "Login payloads cut short by the end of the packet",
	})
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obd_store_writes_total",
		Help: "Store writes by backend and result",
	}, []string{"store", "result"})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "obd_decode_latency_seconds",
		Help:    "Time spent decoding one frame",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

func StoreWrite(store string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreWrites.WithLabelValues(store, result).Inc()
}
