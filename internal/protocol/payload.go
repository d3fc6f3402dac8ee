package protocol

import (
	"strings"
)

// AsciiPayload concatenates labelled sections into a payload, e.g.
// AsciiPayload("01", value, "02", other) -> "01<value>02<other>".
func AsciiPayload(parts ...string) []byte {
	return []byte(strings.Join(parts, ""))
}

// LeftJust fixed-width left-justifies s, truncating if it overflows.
func LeftJust(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RightJustZero fixed-width right-justifies s with '0' padding, truncating
// from the left if it overflows (matching Python's str.rjust semantics
// combined with a trailing slice).
func RightJustZero(s string, width int) string {
	if len(s) >= width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}

// FormatMidAckPayload builds the MID 0005 ack payload: the 4-digit MID
// being acknowledged.
func FormatMidAckPayload(mid string) []byte {
	return []byte(NormalizeMID(mid))
}

// FormatMidErrorPayload builds the MID 0004 error payload:
// <mid(4)><error_code(2)>.
func FormatMidErrorPayload(mid string, code int) []byte {
	return []byte(NormalizeMID(mid) + ZeroPadInt(code, 2))
}

// VariableField is one entry in a variable-data-field block: a parameter
// ID, its 2-character data type, 3-character unit, 4-character step
// number, and ASCII value. LengthOverride, if non-empty, is used verbatim
// instead of the computed 3-digit value length.
type VariableField struct {
	PID            int
	DataType       string
	Unit           string
	StepNo         int
	Value          string
	LengthOverride string
}

// EncodeVariableFields emits the "NNN" field count followed by
// pid(5)+len(3)+type(2)+unit(3)+step(4)+value for each field.
func EncodeVariableFields(fields []VariableField) []byte {
	var b strings.Builder
	b.WriteString(ZeroPadInt(len(fields), 3))
	for _, f := range fields {
		length := f.LengthOverride
		if length == "" {
			length = ZeroPadInt(len(f.Value), 3)
		}
		b.WriteString(ZeroPadInt(f.PID, 5))
		b.WriteString(length)
		b.WriteString(LeftJust(f.DataType, 2)[:2])
		b.WriteString(LeftJust(f.Unit, 3)[:3])
		b.WriteString(ZeroPadInt(f.StepNo, 4))
		b.WriteString(f.Value)
	}
	return []byte(b.String())
}
