package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeBrackets_Label(t *testing.T) {
	b := AgeBrackets{Lower: 0, Edges: []float64{17, 29, 500}, Labels: []string{AgeUnder18, Age18To29, AgeOver29}}
	require.NoError(t, b.Validate())

	assert.Equal(t, AgeUnder18, b.Label(16.9))
	assert.Equal(t, AgeUnder18, b.Label(17))
	assert.Equal(t, Age18To29, b.Label(17.01))
	assert.Equal(t, Age18To29, b.Label(29))
	assert.Equal(t, AgeOver29, b.Label(64))
	assert.Equal(t, "", b.Label(0))
	assert.Equal(t, "", b.Label(501))
}

func TestAgeBrackets_Validate(t *testing.T) {
	assert.Error(t, AgeBrackets{}.Validate())
	assert.Error(t, AgeBrackets{Edges: []float64{10, 5}, Labels: []string{"a", "b"}}.Validate())
	assert.Error(t, AgeBrackets{Edges: []float64{10}, Labels: []string{"a", "b"}}.Validate())
}

func TestDefaultSchema_Valid(t *testing.T) {
	s := DefaultSchema()
	require.NoError(t, s.Validate())

	src, ok := s.SourceFor(OffenseDUI)
	require.True(t, ok)
	assert.Equal(t, SourceNSDUH, src.Name)

	src, ok = s.SourceFor(OffenseRobbery)
	require.True(t, ok)
	assert.Equal(t, SourceNCVS, src.Name)
}

func TestSchema_ValidateOverlap(t *testing.T) {
	s := DefaultSchema()
	s.Sources[1].Offenses = append(s.Sources[1].Offenses, OffenseRobbery)
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by both")
}

func TestSchema_ValidateUnowned(t *testing.T) {
	s := DefaultSchema()
	s.Offenses = append(s.Offenses, "arson")
	assert.Error(t, s.Validate())
}

func TestRiskScores_Value(t *testing.T) {
	s := RiskScores{NCA: IntPtr(3), OGRS3: FloatPtr(0.25)}

	v, ok := s.Value(ScoreNCA)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	v, ok = s.Value(ScoreOGRS3)
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)

	_, ok = s.Value(ScoreNVCA)
	assert.False(t, ok)
}
