package wireblock

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

// readVarInt decodes a Bitcoin compact-size integer from cur, advancing it.
func readVarInt(cur *cursor) (uint64, error) {
	prefix, err := cur.readByte()
	if err != nil {
		return 0, err
	}
	switch prefix {
	case 0xfd:
		b, err := cur.read(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 0xfe:
		b, err := cur.read(4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 0xff:
		b, err := cur.read(8)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b), nil
	default:
		return uint64(prefix), nil
	}
}

// writeVarInt appends the compact-size encoding of v to buf.
func writeVarInt(buf []byte, v uint64) []byte {
	switch {
	case v < 0xfd:
		return append(buf, byte(v))
	case v <= 0xffff:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return append(append(buf, 0xfd), b...)
	case v <= 0xffffffff:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return append(append(buf, 0xfe), b...)
	default:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return append(append(buf, 0xff), b...)
	}
}

// cursor is a minimal bounds-checked reader over a byte slice.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) read(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("read %d bytes at %d of %d: %w", n, c.pos, len(c.buf), errs.ErrMalformedBlock)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) skip(n uint64) error {
	if n > uint64(len(c.buf)-c.pos) {
		return fmt.Errorf("skip %d bytes at %d of %d: %w", n, c.pos, len(c.buf), errs.ErrMalformedBlock)
	}
	c.pos += int(n)
	return nil
}

func (c *cursor) readU32() (uint32, error) {
	b, err := c.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) remaining() []byte {
	return c.buf[c.pos:]
}
