package sinocastel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"time"

	"github.com/404minds/obd-receiver/internal/calibration"
	errs "github.com/404minds/obd-receiver/internal/errors"
	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/internal/observability"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/404minds/obd-receiver/internal/types"
	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var logger = configuredLogger.Logger

const (
	maxFrameSize     = 2048
	readTimeout      = 5 * time.Minute
	calibrationWait  = 2 * time.Second
	storeEnqueueWait = 100 * time.Millisecond
)

type SinocastelProtocol struct {
	DeviceID        string
	DeviceType      types.DeviceType
	SessionID       string
	Source          string
	Decoder         *sinocastel.Decoder
	Calibrations    calibration.Source
	RequireValidCrc bool
}

func (p *SinocastelProtocol) GetDeviceID() string {
	return p.DeviceID
}

func (p *SinocastelProtocol) GetDeviceType() types.DeviceType {
	return p.DeviceType
}

func (p *SinocastelProtocol) SetDeviceType(t types.DeviceType) {
	p.DeviceType = t
}

func (p *SinocastelProtocol) GetProtocolType() types.DeviceProtocolType {
	return types.DeviceProtocolType_SINOCASTEL_OBD
}

// Login identifies the device from the first frame header. Nothing is
// consumed: the login frame is a regular status frame and goes through
// ConsumeStream like the rest. The device expects no reply.
func (p *SinocastelProtocol) Login(reader *bufio.Reader) ([]byte, int, error) {
	header, err := reader.Peek(sinocastel.PayloadOffset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "header peek failed")
	}
	if !bytes.Equal(header[:2], sinocastel.HeadMarker[:]) {
		return nil, 0, errs.ErrUnknownProtocol
	}

	length := int(binary.LittleEndian.Uint16(header[2:4]))
	if length < sinocastel.MinPacketSize || length > maxFrameSize {
		return nil, 0, errors.Wrapf(errs.ErrSinocastelBadFrame, "declared length %d", length)
	}

	deviceID := sinocastel.PeekDeviceID(header)
	if deviceID == "" {
		return nil, 0, errors.Wrap(errs.ErrSinocastelBadFrame, "empty device id")
	}

	p.DeviceID = deviceID
	p.DeviceType = types.DeviceType_SINOCASTEL
	return nil, 0, nil
}

// ConsumeStream decodes frames until the reader fails. Garbage between frames
// is skipped; a clean EOF returns io.EOF.
func (p *SinocastelProtocol) ConsumeStream(reader *bufio.Reader, writer io.Writer, dataStore store.Store) error {
	for {
		p.refreshDeadline(writer)

		frame, err := ReadFrame(reader)
		if err != nil {
			if errors.Is(err, errs.ErrSinocastelBadFrame) {
				observability.FramesDropped.WithLabelValues("framing").Inc()
				logger.Warn("dropping malformed frame", zap.String("deviceId", p.DeviceID), zap.Error(err))
				continue
			}
			return err
		}

		if err := p.ProcessFrame(frame, dataStore); err != nil {
			logger.Warn("frame processing failed", zap.String("deviceId", p.DeviceID), zap.Error(err))
		}
	}
}

// ProcessFrame decodes one complete frame and queues it on dataStore.
func (p *SinocastelProtocol) ProcessFrame(frame []byte, dataStore store.Store) error {
	observability.FramesRecv.Inc()
	deviceID := p.DeviceID
	if deviceID == "" {
		deviceID = sinocastel.PeekDeviceID(frame)
	}

	ctx, cancel := context.WithTimeout(context.Background(), calibrationWait)
	cal := calibration.Resolve(ctx, p.Calibrations, deviceID)
	cancel()

	start := time.Now()
	packet, err := p.decoder().Decode(frame, cal)
	observability.ObserveDecodeLatency(start)
	if err != nil {
		observability.FramesDropped.WithLabelValues("invalid").Inc()
		return err
	}
	observability.PacketsDecoded.WithLabelValues(packet.ProtocolID.String()).Inc()

	if p.DeviceID != "" && packet.DeviceID != p.DeviceID {
		logger.Warn("device id changed mid-session",
			zap.String("loginDeviceId", p.DeviceID), zap.String("packetDeviceId", packet.DeviceID))
	}

	if !packet.CrcValid {
		observability.CrcMismatch.Inc()
		if p.RequireValidCrc {
			observability.FramesDropped.WithLabelValues("crc").Inc()
			return errors.Wrapf(errs.ErrBadCrc, "device %s crc %s", packet.DeviceID, packet.Crc)
		}
	}

	if login, ok := packet.Login(); ok {
		if login.Incomplete {
			observability.IncompletePayloads.Inc()
			logger.Info("incomplete login payload",
				zap.String("deviceId", packet.DeviceID), zap.String("firstMissingField", login.FirstMissingField))
		}
		if login.VehicleOdometerKm != nil {
			logger.Debug("login decoded",
				zap.String("deviceId", packet.DeviceID),
				zap.Float64("odometerKm", *login.VehicleOdometerKm),
				zap.Bool("crcValid", packet.CrcValid))
		}
	} else {
		logger.Info("protocol without payload decoder",
			zap.String("deviceId", packet.DeviceID), zap.Stringer("protocolId", packet.ProtocolID))
	}

	status := types.DeviceStatus{
		SessionID:  p.SessionID,
		DeviceID:   packet.DeviceID,
		DeviceType: types.DeviceType_SINOCASTEL,
		Source:     p.Source,
		ReceivedAt: time.Now().UTC(),
		Raw:        hex.EncodeToString(frame),
		Packet:     packet,
	}

	select {
	case dataStore.GetProcessChan() <- status:
	case <-time.After(storeEnqueueWait):
		observability.FramesDropped.WithLabelValues("store_full").Inc()
		logger.Warn("dropping packet due to store buffer full", zap.String("deviceId", packet.DeviceID))
	}
	return nil
}

func (p *SinocastelProtocol) decoder() *sinocastel.Decoder {
	if p.Decoder == nil {
		return sinocastel.DefaultDecoder
	}
	return p.Decoder
}

func (p *SinocastelProtocol) refreshDeadline(writer io.Writer) {
	if conn, ok := writer.(net.Conn); ok {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			logger.Error("failed to refresh read deadline", zap.Error(err))
		}
	}
}

// ReadFrame returns the next frame as delimited by its declared length.
// Bytes before a head marker are skipped. A declared length outside
// [MinPacketSize, maxFrameSize] consumes the head marker and returns
// errs.ErrSinocastelBadFrame so the caller can resync.
func ReadFrame(reader *bufio.Reader) ([]byte, error) {
	skipped, err := seekHead(reader)
	if skipped > 0 {
		observability.ResyncBytes.Add(float64(skipped))
	}
	if err != nil {
		return nil, err
	}

	header, err := reader.Peek(4)
	if err != nil {
		return nil, err
	}
	length := int(binary.LittleEndian.Uint16(header[2:4]))
	if length < sinocastel.MinPacketSize || length > maxFrameSize {
		_, _ = reader.Discard(2)
		return nil, errors.Wrapf(errs.ErrSinocastelBadFrame, "declared length %d", length)
	}

	frame := make([]byte, length)
	if n, err := io.ReadFull(reader, frame); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Wrapf(err, "frame cut after %d of %d bytes", n, length)
		}
		return nil, err
	}
	return frame, nil
}

// seekHead discards bytes until the reader is positioned on a head marker.
func seekHead(reader *bufio.Reader) (int, error) {
	skipped := 0
	for {
		head, err := reader.Peek(2)
		if err != nil {
			if len(head) == 1 && errors.Is(err, io.EOF) {
				_, _ = reader.Discard(1)
				skipped++
			}
			return skipped, err
		}
		if bytes.Equal(head, sinocastel.HeadMarker[:]) {
			return skipped, nil
		}
		_, _ = reader.Discard(1)
		skipped++
	}
}
