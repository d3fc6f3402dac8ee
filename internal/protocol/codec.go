package protocol

// ParseStreamBuffer consumes as many complete frames as buf holds,
// returning them in arrival order and the unconsumed remainder. It never
// blocks and never errors: malformed leading bytes are dropped one at a
// time until the stream resynchronizes on a valid length field.
func ParseStreamBuffer(buf []byte) ([]Message, []byte) {
	var messages []Message

	for {
		if len(buf) < 4 {
			return messages, buf
		}

		if !allDigits(buf[0:4]) {
			buf = buf[1:]
			continue
		}

		length := asciiDigitsToInt(buf[0:4])
		if length < headerLen {
			buf = buf[4:]
			continue
		}

		if len(buf) < length {
			return messages, buf
		}

		frame := buf[:length]
		buf = buf[length:]

		rawWithTerminator := frame
		if len(buf) > 0 && buf[0] == NUL {
			buf = buf[1:]
			rawWithTerminator = append(append([]byte{}, frame...), NUL)
		}

		header, err := parseHeader(frame[0:headerLen])
		if err != nil {
			// Should be unreachable: length >= headerLen and the first 4
			// header bytes were validated as digits above. Resync defensively.
			continue
		}
		header.Length = length
		data := append([]byte{}, frame[headerLen:]...)

		messages = append(messages, Message{
			Header: header,
			Data:   data,
			Raw:    append([]byte{}, rawWithTerminator...),
			Binary: header.MID == BinaryMID || NormalizeMID(header.MID) == BinaryMID,
		})
	}
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func asciiDigitsToInt(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}
