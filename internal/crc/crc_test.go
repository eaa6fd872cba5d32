package crc

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinocastelCrc(t *testing.T) {
	testCases := []struct {
		input    string
		expected uint16
	}{
		{"40408600043231384c5341423230323530303030303200000010013bd6776861e3776832821500c3e00000983e0000950200020400" +
			"032b2d441000811c011007191125227c3ece046466410900000e06bc42342e332e392e325f42524c20323032342d30312d323520" +
			"303100442d3231384c53412d4220204844432d333656000000", 0x3614},
		{"31 32 33 34 35 36 37 38 39", 0x906E},
	}

	for _, testcase := range testCases {
		data, _ := hex.DecodeString(strings.ReplaceAll(testcase.input, " ", ""))
		crc := CrcSinocastel(data)
		assert.Equal(t, testcase.expected, crc, "crc should match")
	}
}
