package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in    string
		want  Date
		valid bool
	}{
		{"2010-03-04", NewDate(2010, time.March, 4), true},
		{"03/04/2010", NewDate(2010, time.March, 4), true},
		{"2010-03-04 00:00:00", NewDate(2010, time.March, 4), true},
		{"", Date{}, false},
		{"NA", Date{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, d.Valid())
			if tt.valid {
				assert.True(t, tt.want.Equal(d.Time))
			}
		})
	}

	_, err := ParseDate("not a date")
	assert.Error(t, err)
}

func TestDate_YearsSince(t *testing.T) {
	dob := NewDate(1990, time.January, 1)
	at := NewDate(2010, time.January, 1)

	age, ok := at.YearsSince(dob)
	require.True(t, ok)
	assert.InDelta(t, 7305.0/365.25, age, 1e-9)

	_, ok = Date{}.YearsSince(dob)
	assert.False(t, ok)
}

func TestDate_TextRoundTrip(t *testing.T) {
	d := NewDate(2001, time.July, 9)
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2001-07-09", string(b))

	var out Date
	require.NoError(t, out.UnmarshalText(b))
	assert.True(t, d.Equal(out.Time))

	b, err = Date{}.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, b)
}
