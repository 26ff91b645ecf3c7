package shared

import (
	"strconv"

	"github.com/goccy/go-json"
)

// ValueKind tags the scalar type of one extracted data item.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindString
)

// Value is one data item extracted from a snapshot. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Value struct {
	StrVal   string
	IntVal   int64
	FloatVal float64
	Kind     ValueKind
}

func NullValue() Value {
	return Value{Kind: KindNull}
}

func IntValue(i int64) Value {
	return Value{Kind: KindInt, IntVal: i}
}

func FloatValue(f float64) Value {
	return Value{Kind: KindFloat, FloatVal: f}
}

func StringValue(s string) Value {
	return Value{Kind: KindString, StrVal: s}
}

// ValueFromText coerces an element's text content. The contract is: try
// integer first, then float, then fall back to the raw string.
func ValueFromText(text string) Value {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return FloatValue(f)
	}
	return StringValue(text)
}

// MarshalJSON emits the bare scalar, so a Value serializes exactly like the
// untyped field it was extracted from.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInt:
		return json.Marshal(v.IntVal)
	case KindFloat:
		return json.Marshal(v.FloatVal)
	case KindString:
		return json.Marshal(v.StrVal)
	default:
		return []byte("null"), nil
	}
}

// Sample is one recorded, deduplicated observation of a machine. It is
// immutable once constructed: the poller creates it, the buffer queues it,
// the flusher writes it.
type Sample struct {
	Fields    map[string]Value
	Timestamp string
	Machine   string
	Sequence  int64
}

// MarshalJSON flattens the sample into a single JSON object: the mandatory
// timestamp/machine/sequence fields plus every extracted data item.
func (s *Sample) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(s.Fields)+3)
	for key, value := range s.Fields {
		flat[key] = value
	}
	flat["timestamp"] = s.Timestamp
	flat["machine"] = s.Machine
	flat["sequence"] = s.Sequence
	return json.Marshal(flat)
}

// Day returns the calendar day (YYYY-MM-DD) the sample belongs to, taken
// from the date portion of its timestamp.
func (s *Sample) Day() string {
	if len(s.Timestamp) >= 10 {
		return s.Timestamp[:10]
	}
	return s.Timestamp
}
