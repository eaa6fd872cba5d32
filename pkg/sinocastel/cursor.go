package sinocastel

import (
	"bytes"
	"encoding/binary"
	"slices"

	errs "github.com/404minds/obd-receiver/internal/errors"
)

// Cursor is a forward reader over an immutable packet buffer. Multi-byte
// integers are little-endian. A failed read leaves the position untouched.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Pos() int {
	return c.pos
}

func (c *Cursor) Len() int {
	return len(c.buf)
}

func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Seek moves to an absolute position. Going back over consumed bytes is
// allowed; positions outside the buffer are clamped.
func (c *Cursor) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(c.buf) {
		pos = len(c.buf)
	}
	c.pos = pos
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, errs.ErrTruncatedField
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadBytes returns a copy of the next n bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// ReadFixedASCII reads an n-byte, NUL padded ASCII field.
func (c *Cursor) ReadFixedASCII(n int) (string, error) {
	b, err := c.take(n)
	if err != nil {
		return "", err
	}
	return asciiString(b), nil
}

// ReadPaddedASCII reads an n-byte NUL padded field. When the first n bytes
// hold no NUL the text runs on to the next NUL, if there is one.
func (c *Cursor) ReadPaddedASCII(n int) (string, error) {
	widths := paddedWidths(c.rest(), n)
	if len(widths) == 0 {
		return "", errs.ErrTruncatedField
	}
	return c.ReadFixedASCII(widths[0])
}

// paddedWidths lists the byte counts a padded field of nominal size n at the
// start of b may span, the likeliest first: n when a NUL falls inside it,
// otherwise up to and including the first NUL, then the other reading.
func paddedWidths(b []byte, n int) []int {
	var widths []int
	add := func(w int) {
		if w > 0 && w <= len(b) && !slices.Contains(widths, w) {
			widths = append(widths, w)
		}
	}

	nul := bytes.IndexByte(b, 0x00)
	if nul >= 0 && nul < n {
		add(n)
	}
	if nul >= 0 {
		add(nul + 1)
	}
	add(n)
	return widths
}

func (c *Cursor) rest() []byte {
	return c.buf[c.pos:]
}

// ReadCString reads up to and including the next NUL byte and returns the
// text before it.
func (c *Cursor) ReadCString() (string, error) {
	idx := bytes.IndexByte(c.buf[c.pos:], 0x00)
	if idx < 0 {
		return "", errs.ErrUnterminatedString
	}
	b, _ := c.take(idx + 1)
	return asciiString(b[:idx]), nil
}
