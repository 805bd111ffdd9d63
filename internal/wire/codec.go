// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

// Package wire implements the framing used between sync peers.
//
// Two framings are supported. The text framing carries one ASCII record per
// line ("<position>,<time_ms>\n", or "<time_ms>\n" when the group runs with a
// single payload field). The binary framing carries a fixed size record whose
// version byte selects the payload:
//
//	version 1, 14 bytes:
//	+-------+---------+------------------+------------------+
//	| 'S'   | 0x01    | position (int32) | time_ms (int64)  |
//	+-------+---------+------------------+------------------+
//
//	version 2, 10 bytes, time only:
//	+-------+---------+------------------+
//	| 'S'   | 0x02    | time_ms (int64)  |
//	+-------+---------+------------------+
//
// Integers are big endian. Receivers buffer partial reads in a Decoder and
// only decode once a full frame is available.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// UnknownPosition marks a message whose playlist position must not be aligned.
const UnknownPosition = -1

// Framing selects the on-wire record layout.
type Framing string

const (
	FramingText   Framing = "text"
	FramingBinary Framing = "binary"
)

const (
	binaryMagic byte = 'S'

	binaryVersion byte = 1
	binarySize         = 14

	binaryTimeVersion byte = 2
	binaryTimeSize         = 10

	// MaxFrameSize bounds how many undelimited text bytes a Decoder buffers
	// before it gives up on the current record.
	MaxFrameSize = 64
)

// ErrParse is wrapped by every decode failure.
var ErrParse = errors.New("wire: malformed frame")

// Message is one authoritative timing sample.
type Message struct {
	Position int
	TimeMS   int64
}

// Codec encodes messages and creates decoders for one framing configuration.
type Codec struct {
	framing Framing
	fields  int
}

// NewCodec returns a codec for the given framing. fields is the number of
// payload fields per record and must be 1 (time only) or 2.
func NewCodec(framing Framing, fields int) (Codec, error) {
	switch framing {
	case FramingText, FramingBinary:
	default:
		return Codec{}, fmt.Errorf("wire: unknown framing %q", framing)
	}
	if fields != 1 && fields != 2 {
		return Codec{}, fmt.Errorf("wire: payload fields must be 1 or 2, got %d", fields)
	}
	return Codec{framing: framing, fields: fields}, nil
}

// DefaultCodec is newline-delimited text with position and time.
func DefaultCodec() Codec {
	return Codec{framing: FramingText, fields: 2}
}

// Framing reports the codec's framing.
func (c Codec) Framing() Framing { return c.framing }

// Fields reports the number of payload fields.
func (c Codec) Fields() int { return c.fields }

// Encode returns the frame for m.
func (c Codec) Encode(m Message) []byte {
	if c.framing == FramingBinary {
		if c.fields == 1 {
			buf := make([]byte, binaryTimeSize)
			buf[0] = binaryMagic
			buf[1] = binaryTimeVersion
			binary.BigEndian.PutUint64(buf[2:10], uint64(m.TimeMS))
			return buf
		}
		buf := make([]byte, binarySize)
		buf[0] = binaryMagic
		buf[1] = binaryVersion
		binary.BigEndian.PutUint32(buf[2:6], uint32(int32(m.Position)))
		binary.BigEndian.PutUint64(buf[6:14], uint64(m.TimeMS))
		return buf
	}

	buf := make([]byte, 0, 32)
	if c.fields == 2 {
		buf = strconv.AppendInt(buf, int64(m.Position), 10)
		buf = append(buf, ',')
	}
	buf = strconv.AppendInt(buf, m.TimeMS, 10)
	return append(buf, '\n')
}

// NewDecoder returns an empty decoder for this codec.
func (c Codec) NewDecoder() *Decoder {
	if c.framing == "" {
		c = DefaultCodec()
	}
	return &Decoder{codec: c}
}
