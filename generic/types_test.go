package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reconciliation-engine/generic"
)

// =============================================================================
// AMOUNT
// =============================================================================

func TestParseAmount_AcceptsDecimalStrings(t *testing.T) {
	cases := map[string]string{
		"500":                "500.00",
		"120.5":              "120.50",
		"-42.25":             "-42.25",
		" 7.10 ":             "7.10",
		"3.500":              "3.50",
		"0.01":               "0.01",
		"1000000":            "1000000.00",
		"-0000.10":           "-0.10",
		"+15":                "15.00",
		"999999999999999.99": "999999999999999.99",
	}
	for in, want := range cases {
		got, err := generic.ParseAmount("value", in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
}

func TestParseAmount_RejectsMalformedInput(t *testing.T) {
	for _, in := range []string{
		"", "   ", "abc", "12,50", "1.005", "1.2.3",
		"1e200000", "0e-2000000", "1E3", "5e-1", ".5", "5.",
		"1000000000000000", "-1000000000000000.00",
	} {
		_, err := generic.ParseAmount("final_counted_balance", in)

		var ve *generic.ValidationError
		require.ErrorAs(t, err, &ve, "input %q", in)
		assert.Equal(t, "final_counted_balance", ve.Field)
		assert.True(t, generic.IsClientError(err))
	}
}

func TestAmount_SumsWithoutFloatingPointDrift(t *testing.T) {
	// GIVEN: Ten cents added ten times
	// WHEN: Summing as Amount
	// THEN: Exactly one unit, which float64 arithmetic would miss

	total := generic.ZeroAmount()
	for i := 0; i < 10; i++ {
		total = total.Add(generic.MustAmount("0.10"))
	}
	assert.True(t, total.Equal(generic.MustAmount("1.00")))
}

func TestAmount_JSONIsATwoDecimalString(t *testing.T) {
	data, err := json.Marshal(struct {
		Value generic.Amount `json:"value"`
	}{generic.MustAmount("380")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"380.00"}`, string(data))

	var decoded struct {
		A generic.Amount `json:"a"`
		B generic.Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.34","b":-5.5}`), &decoded))
	assert.Equal(t, "12.34", decoded.A.String())
	assert.Equal(t, "-5.50", decoded.B.String())

	err = json.Unmarshal([]byte(`{"a":"twelve"}`), &decoded)
	assert.Error(t, err)
}

// =============================================================================
// DATES, PERIODS, CLOCK TIMES
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate("closing_date", "2024-05-01")
	require.NoError(t, err)
	assert.True(t, d.Time.Equal(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-05-01", d.String())

	_, err = generic.ParseDate("closing_date", "01/05/2024")
	assert.True(t, generic.IsClientError(err))

	_, err = generic.ParseDate("closing_date", "")
	assert.True(t, generic.IsClientError(err))
}

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	at := time.Date(2024, time.May, 1, 23, 59, 0, 0, time.UTC)
	assert.True(t, generic.DateOf(at).Equal(generic.MustDate("2024-05-01")))
}

func TestNewPeriod_RejectsInvertedRange(t *testing.T) {
	_, err := generic.NewPeriod(generic.MustDate("2024-05-10"), generic.MustDate("2024-05-01"))
	assert.True(t, generic.IsClientError(err))

	p, err := generic.NewPeriod(generic.MustDate("2024-05-01"), generic.MustDate("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Days())
}

func TestPeriod_BoundsAreInclusiveOfTheLastDay(t *testing.T) {
	// GIVEN: The period May 1 - May 10
	// THEN: Records late on May 10 are inside, May 11 00:00 is outside

	p := generic.MonthToDate(generic.MustDate("2024-05-10"))
	assert.Equal(t, "2024-05-01", p.Start.String())
	assert.Equal(t, 10, p.Days())

	assert.True(t, p.Contains(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2024, time.May, 10, 23, 59, 59, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, time.April, 30, 23, 59, 59, 0, time.UTC)))
}

func TestClockTime_Within(t *testing.T) {
	morning := func(s string) generic.ClockTime {
		c, err := generic.ParseClockTime("at", s)
		require.NoError(t, err)
		return c
	}
	start, end := morning("06:00"), morning("14:00")
	assert.True(t, morning("06:00").Within(start, end))
	assert.True(t, morning("13:59").Within(start, end))
	assert.False(t, morning("14:00").Within(start, end))

	// Night shift wraps past midnight.
	nightStart, nightEnd := morning("22:00"), morning("06:00")
	assert.True(t, morning("23:30").Within(nightStart, nightEnd))
	assert.True(t, morning("02:00").Within(nightStart, nightEnd))
	assert.False(t, morning("12:00").Within(nightStart, nightEnd))

	assert.Equal(t, "06:00", start.String())

	_, err := generic.ParseClockTime("at", "25:00")
	assert.True(t, generic.IsClientError(err))
}
