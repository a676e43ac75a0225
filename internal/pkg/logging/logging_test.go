package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", false)
	assert.NilError(t, err)

	l.Info().Msg("dropped")
	assert.Equal(t, buf.Len(), 0)

	l.Warn().Str("component", "sqldb").Msg("kept")
	var line map[string]any
	assert.NilError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, line["level"], "warn")
	assert.Equal(t, line["component"], "sqldb")
	assert.Equal(t, line["message"], "kept")
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "", false)
	assert.NilError(t, err)
	l.Debug().Msg("dropped")
	assert.Equal(t, buf.Len(), 0)
	l.Info().Msg("kept")
	assert.Assert(t, buf.Len() > 0)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(&buf, "loud", false)
	assert.ErrorContains(t, err, "loud")
}
