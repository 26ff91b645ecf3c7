package shared

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFromText(t *testing.T) {
	assert.Equal(t, IntValue(1200), ValueFromText("1200"))
	assert.Equal(t, IntValue(-3), ValueFromText("-3"))
	assert.Equal(t, FloatValue(12.5), ValueFromText("12.5"))
	assert.Equal(t, FloatValue(1000), ValueFromText("1e3"))
	assert.Equal(t, StringValue("ACTIVE"), ValueFromText("ACTIVE"))
	assert.Equal(t, StringValue("O1234"), ValueFromText("O1234"))
	assert.Equal(t, StringValue("UNAVAILABLE"), ValueFromText("UNAVAILABLE"))
}

func TestValueMarshal(t *testing.T) {
	tcs := []struct {
		value    Value
		expected string
	}{
		{IntValue(42), "42"},
		{FloatValue(12.5), "12.5"},
		{StringValue("ACTIVE"), `"ACTIVE"`},
		{NullValue(), "null"},
	}
	for _, tc := range tcs {
		content, err := json.Marshal(tc.value)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, string(content))
	}
}

func TestSampleMarshalFlat(t *testing.T) {
	sample := &Sample{
		Timestamp: "2026-08-25T10:00:00.000000001Z",
		Machine:   "QuickTurn",
		Sequence:  4712,
		Fields: map[string]Value{
			"Execution": StringValue("ACTIVE"),
			"Srpm":      IntValue(1200),
			"Angle":     NullValue(),
		},
	}
	content, err := json.Marshal(sample)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &flat))
	assert.Equal(t, "2026-08-25T10:00:00.000000001Z", flat["timestamp"])
	assert.Equal(t, "QuickTurn", flat["machine"])
	assert.Equal(t, float64(4712), flat["sequence"])
	assert.Equal(t, "ACTIVE", flat["Execution"])
	assert.Equal(t, float64(1200), flat["Srpm"])
	value, present := flat["Angle"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestSampleMarshalMandatoryFieldsWin(t *testing.T) {
	// An extracted data item must never shadow the mandatory fields.
	sample := &Sample{
		Timestamp: "2026-08-25T10:00:00Z",
		Machine:   "VTC",
		Sequence:  7,
		Fields: map[string]Value{
			"machine": StringValue("bogus"),
		},
	}
	content, err := json.Marshal(sample)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &flat))
	assert.Equal(t, "VTC", flat["machine"])
}

func TestSampleDay(t *testing.T) {
	sample := &Sample{Timestamp: "2026-08-25T23:59:59.999Z"}
	assert.Equal(t, "2026-08-25", sample.Day())
}
