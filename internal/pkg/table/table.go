package table

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrIndexNotPresent = errors.New("table index not present")
	ErrMalformed       = errors.New("malformed table")
)

// Table is a stepwise lookup: Value(x) is the y of the largest key <= x
type Table struct {
	x []float64
	y []float64
}

// New returns a Table over strictly increasing keys x
func New(x, y []float64) (*Table, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d keys and %d values: %w", len(x), len(y), ErrMalformed)
	}
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			return nil, fmt.Errorf("keys not increasing at %d: %w", i, ErrMalformed)
		}
	}
	return &Table{
		x: append([]float64(nil), x...),
		y: append([]float64(nil), y...),
	}, nil
}

// Value looks up the step containing x
func (t *Table) Value(x float64) (float64, error) {
	if t == nil || len(t.x) == 0 || x < t.x[0] {
		return 0, fmt.Errorf("lookup %v: %w", x, ErrIndexNotPresent)
	}
	i := sort.Search(len(t.x), func(i int) bool { return t.x[i] > x }) - 1
	return t.y[i], nil
}

// Len is the number of steps
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.x)
}
