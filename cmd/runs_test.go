package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/rai-disparity/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "0123456789abcdef",
			Name:      "White-Black_synth_flame_nomrep_lam3e1000om3e1000_0_0b1b2b4b9",
			Status:    model.RunStatusComplete,
			CreatedAt: created,
			UpdatedAt: created.Add(90 * time.Second),
		},
		{ID: "short", Name: "observed", Status: model.RunStatusFailed, CreatedAt: created, UpdatedAt: created},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "failed")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijkl"))
	assert.Equal(t, "abc", truncateID("abc"))
}
