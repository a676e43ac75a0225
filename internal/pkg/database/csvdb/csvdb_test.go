package csvdb

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ohowland/relsim/internal/pkg/history"
	"gotest.tools/v3/assert"
)

type owner struct {
	name string
	log  *history.Log
}

func (o owner) Name() string          { return o.name }
func (o owner) History() *history.Log { return o.log }

func TestWriteHistoriesOneFilePerAttribute(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	assert.NilError(t, err)

	a := owner{"B1", history.New()}
	b := owner{"B2", history.New()}
	for i := 0; i < 3; i++ {
		a.log.Record("pload", float64(i))
		b.log.Record("pload", float64(10*i))
		a.log.RecordBool("trafo_failed", i == 1)
	}
	groups := map[string][]history.Owner{"bus": {a, b}}
	assert.NilError(t, store.WriteHistories("0", []float64{0, 1, 2}, groups))

	tab, err := ReadTable(filepath.Join(dir, "0", "bus", "pload.csv"))
	assert.NilError(t, err)
	assert.DeepEqual(t, tab.Header, []string{"B1", "B2"})
	assert.DeepEqual(t, tab.Index, []float64{0, 1, 2})
	col, ok := tab.Column("B2")
	assert.Assert(t, ok)
	assert.DeepEqual(t, col, []float64{0, 10, 20})

	tab, err = ReadTable(filepath.Join(dir, "0", "bus", "trafo_failed.csv"))
	assert.NilError(t, err)
	assert.DeepEqual(t, tab.Header, []string{"B1"})
	col, _ = tab.Column("B1")
	assert.DeepEqual(t, col, []float64{0, 1, 0})
}

func TestShortSeriesArePaddedWithNaN(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	a := owner{"L1", history.New()}
	a.log.Record("failed", 1)
	assert.NilError(t, store.WriteHistories("s", []float64{0, 0.5}, map[string][]history.Owner{"line": {a}}))

	tab, err := ReadTable(filepath.Join(dir, "s", "line", "failed.csv"))
	assert.NilError(t, err)
	assert.Equal(t, tab.Rows[0][0], 1.0)
	assert.Assert(t, math.IsNaN(tab.Rows[1][0]))
}

func TestWriteTableRejectsShortRows(t *testing.T) {
	store, _ := New(t.TempDir())
	err := store.WriteTable("monte_carlo", "SAIFI", []string{"a", "b"}, nil, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrShortRow)
}

func TestReadMissingTable(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorContains(t, err, "csvdb")
}
