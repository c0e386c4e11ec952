package app

import (
	"encoding/binary"
	"errors"
)

// frameHeaderSize is the fixed part of a workload message: producer id,
// flags and sequence number.
const frameHeaderSize = 8

const frameUrgent uint16 = 1 << 0

var errShortFrame = errors.New("frame too short")

type frame struct {
	producer uint16
	flags    uint16
	seq      uint32
}

// encode writes f into buf and fills the rest with a pattern derived from
// the sequence number. It returns buf.
func (f frame) encode(buf []byte) []byte {
	binary.LittleEndian.PutUint16(buf[0:], f.producer)
	binary.LittleEndian.PutUint16(buf[2:], f.flags)
	binary.LittleEndian.PutUint32(buf[4:], f.seq)
	for i := frameHeaderSize; i < len(buf); i++ {
		buf[i] = pattern(f.seq, i)
	}
	return buf
}

// decodeFrame parses buf and reports whether the payload pattern is intact.
func decodeFrame(buf []byte) (frame, bool, error) {
	if len(buf) < frameHeaderSize {
		return frame{}, false, errShortFrame
	}
	f := frame{
		producer: binary.LittleEndian.Uint16(buf[0:]),
		flags:    binary.LittleEndian.Uint16(buf[2:]),
		seq:      binary.LittleEndian.Uint32(buf[4:]),
	}
	for i := frameHeaderSize; i < len(buf); i++ {
		if buf[i] != pattern(f.seq, i) {
			return f, false, nil
		}
	}
	return f, true, nil
}

func pattern(seq uint32, i int) byte { return byte(seq) ^ byte(i*31) }
