// Package packet encodes and decodes rate sweep benchmarking packets.
//
// Every packet has the same length. It starts with the ASCII decimal
// sequence number and a delimiter, ends with the name of the rate that was
// active when it was sent, and is padded with filler in between:
//
//	[sequence][,][filler ...][....RATE_NAME]
//
// The rate tag is TagWidth bytes wide, right aligned and left padded with
// rate.Pad. Receivers only rely on the tag, so corrupted filler or sequence
// bytes never affect classification.
package packet

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/m-lab/linkbench/rate"
)

const (
	// TagWidth is the width of the rate tag at the end of every packet.
	TagWidth = rate.MaxNameLength

	// Delimiter terminates the sequence number.
	Delimiter = ','

	// Filler is written in bytes that carry no information.
	Filler = 'x'

	// MaxLength is the largest payload a radio frame carries (ESP-NOW).
	MaxLength = 250
)

var (
	// ErrPacketTooSmall means the requested length cannot hold both the
	// sequence number and the rate tag.
	ErrPacketTooSmall = errors.New("packet too small")

	// ErrTagTooLong means the rate name does not fit in TagWidth bytes.
	ErrTagTooLong = errors.New("rate name longer than tag width")

	// ErrUnrecognizedTag means the trailing tag is not a known rate name.
	ErrUnrecognizedTag = errors.New("unrecognized rate tag")

	// ErrNoSequence means the packet does not start with a sequence number.
	ErrNoSequence = errors.New("no sequence number")
)

// MinLength returns the smallest packet length able to carry seq.
func MinLength(seq int64) int {
	return len(strconv.FormatInt(seq, 10)) + 1 + TagWidth
}

// Encoder writes packets into a single reusable buffer. Bytes in the middle
// of the buffer keep whatever the previous packet left there.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder for packets of the given length.
func NewEncoder(length int) (*Encoder, error) {
	if length < MinLength(0) {
		return nil, fmt.Errorf("%w: %d < %d", ErrPacketTooSmall, length, MinLength(0))
	}
	buf := bytes.Repeat([]byte{Filler}, length)
	return &Encoder{buf: buf}, nil
}

// Len returns the length of the packets produced by e.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Encode fills the buffer with a packet carrying seq and rateName and
// returns it. The returned slice is only valid until the next call.
func (e *Encoder) Encode(seq int64, rateName string) ([]byte, error) {
	if seq < 0 {
		return nil, fmt.Errorf("%w: negative sequence %d", ErrNoSequence, seq)
	}
	if len(rateName) > TagWidth {
		return nil, fmt.Errorf("%w: %q", ErrTagTooLong, rateName)
	}
	if need := MinLength(seq); len(e.buf) < need {
		return nil, fmt.Errorf("%w: %d < %d", ErrPacketTooSmall, len(e.buf), need)
	}
	head := strconv.AppendInt(e.buf[:0], seq, 10)
	e.buf[len(head)] = Delimiter
	tag := e.buf[len(e.buf)-TagWidth:]
	pad := TagWidth - len(rateName)
	for i := 0; i < pad; i++ {
		tag[i] = rate.Pad
	}
	copy(tag[pad:], rateName)
	return e.buf, nil
}

// Encode returns a freshly allocated packet of the given length.
func Encode(seq int64, rateName string, length int) ([]byte, error) {
	if need := MinLength(seq); length < need {
		return nil, fmt.Errorf("%w: %d < %d", ErrPacketTooSmall, length, need)
	}
	e, err := NewEncoder(length)
	if err != nil {
		return nil, err
	}
	return e.Encode(seq, rateName)
}

// Tag returns the trimmed rate tag of buf without validating it.
func Tag(buf []byte) string {
	if len(buf) < TagWidth {
		return ""
	}
	return string(bytes.TrimLeft(buf[len(buf)-TagWidth:], string(rate.Pad)))
}

// Decode returns the rate a packet was sent with.
func Decode(buf []byte, t *rate.Table) (rate.Rate, error) {
	if len(buf) < TagWidth {
		return rate.Rate{}, fmt.Errorf("%w: short packet (%d bytes)", ErrUnrecognizedTag, len(buf))
	}
	name := Tag(buf)
	r, err := t.Lookup(name)
	if err != nil {
		return rate.Rate{}, fmt.Errorf("%w: %q", ErrUnrecognizedTag, name)
	}
	return r, nil
}

// Sequence parses the sequence number at the start of buf.
func Sequence(buf []byte) (int64, error) {
	end := bytes.IndexByte(buf, Delimiter)
	if end <= 0 {
		return 0, ErrNoSequence
	}
	seq, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoSequence, err)
	}
	return seq, nil
}
