package protocol

// Message is a decoded or built Open Protocol frame: a header plus its
// payload, and the exact bytes that go on (or came off) the wire.
type Message struct {
	Header Header
	Data   []byte
	Raw    []byte
	Binary bool
}

// MID returns the message's normalized 4-digit MID.
func (m Message) MID() string {
	return NormalizeMID(m.Header.MID)
}

// Revision returns the message's integer revision (0 means "any").
func (m Message) Revision() int {
	return m.Header.RevisionInt()
}

// DataASCII returns the payload decoded as ASCII, replacing any
// non-ASCII byte with '?' rather than failing.
func (m Message) DataASCII() string {
	b := make([]byte, len(m.Data))
	for i, c := range m.Data {
		if c > 127 {
			b[i] = '?'
		} else {
			b[i] = c
		}
	}
	return string(b)
}

// BuildOptions carries the optional header fields for BuildMessage. The
// zero value matches Open Protocol's documented defaults.
type BuildOptions struct {
	Revision          any // int or string
	NoAckFlag         string
	StationID         string
	SpindleID         string
	SequenceNumber    any // int or string
	MessageParts      string
	MessagePartNumber string
	AppendNUL         *bool // nil means true, except MID 0900 which is always false
	Binary            bool
}

func intOrStringField(v any, width, defaultValue int) string {
	switch t := v.(type) {
	case nil:
		return ZeroPadInt(defaultValue, width)
	case int:
		return ZeroPadInt(t, width)
	case string:
		return fixedField(t, width)
	default:
		return ZeroPadInt(defaultValue, width)
	}
}

// BuildMessage constructs a Message from a MID and payload bytes,
// applying Open Protocol's documented header defaults: revision 1,
// sequence 0, spaces for station/spindle/parts.
func BuildMessage(mid string, data []byte, opts BuildOptions) Message {
	mid = NormalizeMID(mid)
	binary := mid == BinaryMID

	noAck := opts.NoAckFlag
	if noAck == "" {
		noAck = " "
	}
	station := opts.StationID
	if station == "" {
		station = "  "
	}
	spindle := opts.SpindleID
	if spindle == "" {
		spindle = "  "
	}
	parts := opts.MessageParts
	if parts == "" {
		parts = " "
	}
	partNum := opts.MessagePartNumber
	if partNum == "" {
		partNum = " "
	}

	header := Header{
		Length:            headerLen + len(data),
		MID:               mid,
		Revision:          intOrStringField(opts.Revision, 3, 1),
		NoAckFlag:         noAck,
		StationID:         station,
		SpindleID:         spindle,
		SequenceNumber:    intOrStringField(opts.SequenceNumber, 2, 0),
		MessageParts:      parts,
		MessagePartNumber: partNum,
	}

	headerBytes := []byte(buildHeaderText(header))
	raw := append(append([]byte{}, headerBytes...), data...)

	appendNUL := mid != BinaryMID
	if opts.AppendNUL != nil {
		appendNUL = *opts.AppendNUL
	}
	if mid == BinaryMID {
		appendNUL = false
	}
	if appendNUL {
		raw = append(raw, NUL)
	}

	return Message{
		Header: header,
		Data:   data,
		Raw:    raw,
		Binary: binary || opts.Binary,
	}
}

// WithSequence returns a copy of m re-encoded with a new link-level
// sequence number, preserving every other header field and the original
// NUL-termination choice.
func (m Message) WithSequence(seq int) Message {
	appendNUL := len(m.Raw) > 0 && m.Raw[len(m.Raw)-1] == NUL
	return BuildMessage(m.Header.MID, m.Data, BuildOptions{
		Revision:          m.Header.Revision,
		NoAckFlag:         m.Header.NoAckFlag,
		StationID:         m.Header.StationID,
		SpindleID:         m.Header.SpindleID,
		SequenceNumber:    seq,
		MessageParts:      m.Header.MessageParts,
		MessagePartNumber: m.Header.MessagePartNumber,
		AppendNUL:         &appendNUL,
		Binary:            m.Binary,
	})
}
