package ratespec_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splintercommunity/transact/internal/ratespec"
)

func TestParseFixed(t *testing.T) {
	tests := []struct {
		input     string
		perSecond float64
	}{
		{input: "5/s", perSecond: 5},
		{input: "10", perSecond: 10},
		{input: "0.5", perSecond: 0.5},
		{input: "120/m", perSecond: 2},
		{input: "3600/h", perSecond: 1},
		{input: "2s", perSecond: 0.5},
		{input: "", perSecond: 1},
		{input: "  7/s ", perSecond: 7},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := ratespec.Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, spec.IsFixed())
			assert.Equal(t, spec.Min, spec.Max)
			assert.InDelta(t, tt.perSecond, spec.Min.PerSecond(), 1e-9)
		})
	}
}

func TestParseRange(t *testing.T) {
	spec, err := ratespec.Parse("5-10/s")
	require.NoError(t, err)
	assert.False(t, spec.IsFixed())
	assert.InDelta(t, 5, spec.Min.PerSecond(), 1e-9)
	assert.InDelta(t, 10, spec.Max.PerSecond(), 1e-9)
	assert.LessOrEqual(t, spec.Min.PerSecond(), spec.Max.PerSecond())
}

func TestParseReportsFailingSide(t *testing.T) {
	tests := []struct {
		input string
		field string
	}{
		{input: "bad-10/s", field: ratespec.FieldMinRate},
		{input: "5/s-bad", field: ratespec.FieldMaxRate},
		{input: "nope", field: ratespec.FieldRate},
		{input: "1-2-3", field: ratespec.FieldRate},
		{input: "0/s", field: ratespec.FieldRate},
		{input: "10/s-5/s", field: ratespec.FieldRate},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ratespec.Parse(tt.input)
			require.Error(t, err)
			var perr *ratespec.ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %T", err)
			assert.Equal(t, tt.field, perr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseRejectsInvertedRange(t *testing.T) {
	_, err := ratespec.Parse("10/s-5/s")
	assert.ErrorIs(t, err, ratespec.ErrRangeInverted)
}

func TestParseRejectsNonPositive(t *testing.T) {
	_, err := ratespec.Parse("0")
	assert.ErrorIs(t, err, ratespec.ErrNotPositive)
}

func TestSampleStaysWithinRange(t *testing.T) {
	spec, err := ratespec.Parse("5-10/s")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	min, max := spec.Min.PerSecond(), spec.Max.PerSecond()
	for i := 0; i < 10_000; i++ {
		got := spec.Sample(rng).PerSecond()
		if got < min-1e-9 || got > max+1e-9 {
			t.Fatalf("sample %d out of range: %f not in [%f, %f]", i, got, min, max)
		}
	}
}

func TestSampleFixedIsUnchanged(t *testing.T) {
	spec, err := ratespec.Parse("3/s")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		assert.Equal(t, spec.Min, spec.Sample(rng))
	}
	assert.Equal(t, spec.Min, spec.Sample(nil))
}

func TestSampleDegenerateRangeCollapses(t *testing.T) {
	spec, err := ratespec.Parse("60/m-1/s")
	require.NoError(t, err)
	assert.True(t, spec.IsFixed())
	assert.Equal(t, spec.Min, spec.Sample(rand.New(rand.NewSource(7))))
}

func TestIntervalFromRate(t *testing.T) {
	spec, err := ratespec.Parse("2/s")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, spec.Min.Interval())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "", want: 0},
		{input: "30s", want: 30 * time.Second},
		{input: "5m", want: 5 * time.Minute},
		{input: "1.5h", want: 90 * time.Minute},
		{input: "5/s", wantErr: true},
		{input: "10", wantErr: true},
		{input: "-3s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ratespec.ParseDuration(tt.input)
			if tt.wantErr {
				var perr *ratespec.ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, ratespec.FieldDuration, perr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeString(t *testing.T) {
	rate, err := ratespec.ParseTime("2.5/m")
	require.NoError(t, err)
	assert.Equal(t, "2.5/m", rate.String())

	span, err := ratespec.ParseTime("30s")
	require.NoError(t, err)
	assert.Equal(t, "30s", span.String())
}
