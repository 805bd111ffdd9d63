// Media Player - Synchronized Playback for Unattended Video Nodes
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ACMILabs/media-player

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// Status tags the outcome of a decode attempt.
type Status int

const (
	// StatusNotReady means the buffer does not yet hold a complete frame.
	StatusNotReady Status = iota
	// StatusOK means Result.Message holds a decoded frame.
	StatusOK
	// StatusParseError means a complete frame was consumed but was malformed.
	StatusParseError
)

func (s Status) String() string {
	switch s {
	case StatusNotReady:
		return "not_ready"
	case StatusOK:
		return "ok"
	case StatusParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of Decoder.Next.
type Result struct {
	Status  Status
	Message Message
	Err     error
}

// Decoder accumulates stream bytes and splits them into frames.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	codec Codec
	buf   []byte
}

// Feed appends received bytes to the decoder's buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered reports how many undecoded bytes are held.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Reset discards any buffered bytes.
func (d *Decoder) Reset() { d.buf = d.buf[:0] }

// Next decodes the next complete frame, if any. Callers drain the decoder by
// calling Next until it reports StatusNotReady.
func (d *Decoder) Next() Result {
	if d.codec.framing == FramingBinary {
		return d.nextBinary()
	}
	return d.nextText()
}

func (d *Decoder) nextText() Result {
	i := bytes.IndexByte(d.buf, '\n')
	if i < 0 {
		if len(d.buf) > MaxFrameSize {
			n := len(d.buf)
			d.Reset()
			return parseError(fmt.Errorf("%w: %d bytes without delimiter", ErrParse, n))
		}
		return Result{Status: StatusNotReady}
	}

	line := bytes.TrimSuffix(d.buf[:i], []byte{'\r'})
	msg, err := d.parseText(line)
	d.consume(i + 1)
	if err != nil {
		return parseError(err)
	}
	return Result{Status: StatusOK, Message: msg}
}

func (d *Decoder) parseText(line []byte) (Message, error) {
	fields := bytes.Split(line, []byte{','})
	if len(fields) != d.codec.fields {
		return Message{}, fmt.Errorf("%w: want %d fields, got %d in %q", ErrParse, d.codec.fields, len(fields), line)
	}

	msg := Message{Position: UnknownPosition}
	timeField := fields[0]
	if d.codec.fields == 2 {
		pos, err := strconv.Atoi(string(fields[0]))
		if err != nil {
			return Message{}, fmt.Errorf("%w: position %q", ErrParse, fields[0])
		}
		if pos < UnknownPosition {
			return Message{}, fmt.Errorf("%w: position %d out of range", ErrParse, pos)
		}
		msg.Position = pos
		timeField = fields[1]
	}

	t, err := strconv.ParseInt(string(timeField), 10, 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: time %q", ErrParse, timeField)
	}
	if t < 0 {
		return Message{}, fmt.Errorf("%w: negative time %d", ErrParse, t)
	}
	msg.TimeMS = t
	return msg, nil
}

func (d *Decoder) nextBinary() Result {
	if len(d.buf) == 0 {
		return Result{Status: StatusNotReady}
	}
	if d.buf[0] != binaryMagic {
		return d.skipRecord("bad magic")
	}
	if len(d.buf) < 2 {
		return Result{Status: StatusNotReady}
	}

	var size int
	switch d.buf[1] {
	case binaryVersion:
		size = binarySize
	case binaryTimeVersion:
		size = binaryTimeSize
	default:
		return d.skipRecord(fmt.Sprintf("unsupported version %d", d.buf[1]))
	}
	if len(d.buf) < size {
		return Result{Status: StatusNotReady}
	}

	frame := d.buf[:size]
	msg := Message{Position: UnknownPosition}
	var t int64
	if size == binarySize {
		pos := int32(binary.BigEndian.Uint32(frame[2:6]))
		t = int64(binary.BigEndian.Uint64(frame[6:14]))
		if pos < UnknownPosition {
			d.consume(size)
			return parseError(fmt.Errorf("%w: position %d out of range", ErrParse, pos))
		}
		// A time-only group never aligns playlist position.
		if d.codec.fields == 2 {
			msg.Position = int(pos)
		}
	} else {
		t = int64(binary.BigEndian.Uint64(frame[2:10]))
	}
	d.consume(size)

	if t < 0 {
		return parseError(fmt.Errorf("%w: negative time %d", ErrParse, t))
	}
	msg.TimeMS = t
	return Result{Status: StatusOK, Message: msg}
}

// skipRecord drops bytes up to the next candidate record start.
func (d *Decoder) skipRecord(reason string) Result {
	skip := bytes.IndexByte(d.buf[1:], binaryMagic)
	if skip < 0 {
		skip = len(d.buf) - 1
	}
	d.consume(skip + 1)
	return parseError(fmt.Errorf("%w: %s, skipped %d bytes", ErrParse, reason, skip+1))
}

func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}

func parseError(err error) Result {
	return Result{Status: StatusParseError, Err: err}
}
