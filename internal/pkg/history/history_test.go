package history

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRecord(t *testing.T) {
	l := New()
	l.Record("p", 1.5)
	l.Record("p", 2)
	l.RecordBool("failed", true)
	l.RecordBool("failed", false)
	l.Record("q", 0.1)

	assert.DeepEqual(t, l.Series("p"), []float64{1.5, 2})
	assert.DeepEqual(t, l.Series("failed"), []float64{1, 0})
	assert.DeepEqual(t, l.Attributes(), []string{"failed", "p", "q"})
	assert.Equal(t, l.Len(), 2)
	assert.Assert(t, l.Series("missing") == nil)
}

func TestNilLogDiscards(t *testing.T) {
	var l *Log
	l.Record("p", 1)
	l.RecordBool("failed", true)
	assert.Assert(t, l.Series("p") == nil)
	assert.Assert(t, l.Attributes() == nil)
	assert.Equal(t, l.Len(), 0)
}
