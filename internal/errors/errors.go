package errors

import "errors"

// decoder
var ErrInvalidPacket = errors.New("packet shorter than minimum frame")
var ErrTruncatedField = errors.New("field truncated by end of buffer")
var ErrUnterminatedString = errors.New("string field without NUL terminator")
var ErrUnknownProtocol = errors.New("unknown protocol id")

// receiver
var ErrUnknownDeviceType = errors.New("unknown device type")
var ErrSinocastelBadFrame = errors.New("invalid sinocastel frame")
var ErrBadCrc = errors.New("bad crc in data packet")
var ErrUnknownStoreType = errors.New("unknown store type")
var ErrCalibrationNotFound = errors.New("no calibration for device")
