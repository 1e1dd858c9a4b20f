package coerce

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToNumber_ZeroForNonNumeric(t *testing.T) {
	for _, in := range []interface{}{nil, "", "abc", math.NaN(), math.Inf(1), "  ", true, []int{1}} {
		assert.Equal(t, 0.0, ToNumber(in), "input %#v", in)
	}
}

func TestToNumber_ParsesNumericInput(t *testing.T) {
	assert.Equal(t, 12.5, ToNumber("12.5"))
	assert.Equal(t, 12.5, ToNumber(12.5))
	assert.Equal(t, 0.0, ToNumber("0"))
	assert.Equal(t, 120.5, ToNumber("120.50"))
	assert.Equal(t, 7.0, ToNumber(int64(7)))
	assert.Equal(t, -3.25, ToNumber(" -3.25 "))
}

func TestToNumber_Pointers(t *testing.T) {
	var nilF *float64
	assert.Equal(t, 0.0, ToNumber(nilF))
	f := 4.5
	assert.Equal(t, 4.5, ToNumber(&f))
	s := "9"
	assert.Equal(t, 9.0, ToNumber(&s))
}

func TestNumber_ReportsNumericness(t *testing.T) {
	_, ok := Number("0")
	assert.True(t, ok)
	_, ok = Number("bad")
	assert.False(t, ok)
	_, ok = Number(nil)
	assert.False(t, ok)
}

func TestToString(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "12.5", ToString(12.5))
	assert.Equal(t, "30", ToString(30.0))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "2024-03-01T10:00:00Z", ToString(ts))
}

func TestTime(t *testing.T) {
	d, dateOnly, ok := Time("2024-01-31")
	assert.True(t, ok)
	assert.True(t, dateOnly)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), d)

	ts, dateOnly, ok := Time("2024-01-31T10:30:00Z")
	assert.True(t, ok)
	assert.False(t, dateOnly)
	assert.Equal(t, 10, ts.Hour())

	now := time.Now()
	got, _, ok := Time(&now)
	assert.True(t, ok)
	assert.True(t, now.Equal(got))

	for _, in := range []interface{}{nil, "", "31/01/2024", 20240131, (*time.Time)(nil)} {
		_, _, ok := Time(in)
		assert.False(t, ok, "input %#v", in)
	}
}
