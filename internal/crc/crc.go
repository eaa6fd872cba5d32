package crc

import "github.com/snksoft/crc"

// CrcSinocastel is CRC-16/X25 as used by the Sinocastel OBD trackers. It covers
// every byte of a frame up to (not including) the CRC field.
func CrcSinocastel(data []byte) uint16 {
	checksum := crc.CalculateCRC(crc.X25, data)
	return uint16(checksum)
}
