// Package protocol implements the Open Protocol wire format: the fixed
// 20-byte ASCII header, message framing over a byte stream, and the
// payload builders shared by the dispatcher and state store.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const headerLen = 20

// NUL is the framing terminator that follows every ASCII message except
// MID 0900, whose payload is binary trace data.
const NUL = 0x00

// BinaryMID is the one MID whose payload is raw bytes rather than ASCII
// fields, and which is never NUL-terminated on the wire.
const BinaryMID = "0900"

// Header is the fixed 20-byte Open Protocol message header.
type Header struct {
	Length            int
	MID               string
	Revision          string
	NoAckFlag         string
	StationID         string
	SpindleID         string
	SequenceNumber    string
	MessageParts      string
	MessagePartNumber string
}

// RevisionInt parses the 3-character revision field, treating blank or
// unparsable input as 0 ("any revision").
func (h Header) RevisionInt() int {
	v, err := strconv.Atoi(strings.TrimSpace(h.Revision))
	if err != nil {
		return 0
	}
	return v
}

// SequenceInt parses the 2-digit sequence field, treating blank or
// unparsable input as 0 (no link-level sequence).
func (h Header) SequenceInt() int {
	v, err := strconv.Atoi(strings.TrimSpace(h.SequenceNumber))
	if err != nil {
		return 0
	}
	return v
}

// HasSequence reports whether this header carries a link-level sequence
// number in [1, 99].
func (h Header) HasSequence() bool {
	seq := h.SequenceInt()
	return seq >= 1 && seq <= 99
}

// NormalizeMID left-pads a MID with zeros and truncates to the trailing 4
// characters, the normalization rule used everywhere a MID crosses a
// component boundary.
func NormalizeMID(mid string) string {
	if len(mid) < 4 {
		return strings.Repeat("0", 4-len(mid)) + mid
	}
	return mid[len(mid)-4:]
}

// ZeroPadInt renders value as a zero-padded decimal string of the given
// width.
func ZeroPadInt(value, width int) string {
	return fmt.Sprintf("%0*d", width, value)
}

// NextSequence advances a link-level sequence counter, cycling 99 back to
// 1. Sequence 0 is never produced.
func NextSequence(seq int) int {
	if seq >= 99 {
		return 1
	}
	return seq + 1
}

func fixedField(value string, width int) string {
	if value == "" {
		value = strings.Repeat(" ", width)
	}
	if len(value) < width {
		value = strings.Repeat(" ", width-len(value)) + value
	}
	return value[len(value)-width:]
}

// buildHeaderText renders a Header into its 20-byte ASCII wire form.
func buildHeaderText(h Header) string {
	var b strings.Builder
	b.WriteString(ZeroPadInt(h.Length, 4))
	b.WriteString(fixedField(NormalizeMID(h.MID), 4))
	b.WriteString(fixedField(h.Revision, 3))
	b.WriteString(fixedField(h.NoAckFlag, 1))
	b.WriteString(fixedField(h.StationID, 2))
	b.WriteString(fixedField(h.SpindleID, 2))
	b.WriteString(fixedField(h.SequenceNumber, 2))
	b.WriteString(fixedField(h.MessageParts, 1))
	b.WriteString(fixedField(h.MessagePartNumber, 1))
	return b.String()
}

// parseHeader decodes a 20-byte ASCII header. raw must be exactly
// headerLen bytes.
func parseHeader(raw []byte) (Header, error) {
	if len(raw) != headerLen {
		return Header{}, fmt.Errorf("protocol: header must be exactly %d bytes, got %d", headerLen, len(raw))
	}
	text := string(raw)
	length, err := strconv.Atoi(text[0:4])
	if err != nil {
		return Header{}, fmt.Errorf("protocol: invalid length field %q: %w", text[0:4], err)
	}
	return Header{
		Length:            length,
		MID:               text[4:8],
		Revision:          text[8:11],
		NoAckFlag:         text[11:12],
		StationID:         text[12:14],
		SpindleID:         text[14:16],
		SequenceNumber:    text[16:18],
		MessageParts:      text[18:19],
		MessagePartNumber: text[19:20],
	}, nil
}
