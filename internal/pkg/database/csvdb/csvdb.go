// Package csvdb persists per-tick histories and Monte-Carlo tables as CSV
// files, one file per attribute.
package csvdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ohowland/relsim/internal/pkg/history"
)

// IndexColumn heads the first column of every file
const IndexColumn = "time"

var ErrShortRow = errors.New("row shorter than header")

// Store writes below a root directory
type Store struct {
	dir string
}

// New creates dir when missing and returns a Store rooted at it
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvdb: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// WriteHistories writes every attribute recorded by the owners of each
// group to sub/<group>/<attribute>.csv with one column per owner.
func (s *Store) WriteHistories(sub string, index []float64, groups map[string][]history.Owner) error {
	for group, owners := range groups {
		attrs := map[string]bool{}
		var order []string
		for _, o := range owners {
			for _, a := range o.History().Attributes() {
				if !attrs[a] {
					attrs[a] = true
					order = append(order, a)
				}
			}
		}
		for _, attr := range order {
			header := make([]string, 0, len(owners))
			cols := make([][]float64, 0, len(owners))
			for _, o := range owners {
				series := o.History().Series(attr)
				if series == nil {
					continue
				}
				header = append(header, o.Name())
				cols = append(cols, series)
			}
			if err := s.write(filepath.Join(sub, group), attr, header, index, columns(cols, len(index))); err != nil {
				return err
			}
		}
	}
	return nil
}

// columns transposes per-owner series into rows of length n. Missing values
// are NaN.
func columns(cols [][]float64, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(cols))
		for j, c := range cols {
			if i < len(c) {
				rows[i][j] = c[i]
				continue
			}
			rows[i][j] = nan
		}
	}
	return rows
}

// WriteTable writes sub/name.csv with the given header and rows
func (s *Store) WriteTable(sub, name string, header []string, index []float64, rows [][]float64) error {
	return s.write(sub, name, header, index, rows)
}

func (s *Store) write(sub, name string, header []string, index []float64, rows [][]float64) error {
	dir := filepath.Join(s.dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csvdb: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name+".csv"))
	if err != nil {
		return fmt.Errorf("csvdb: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{IndexColumn}, header...)); err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) < len(header) {
			return fmt.Errorf("%s row %d: %w", name, i, ErrShortRow)
		}
		rec := make([]string, 0, len(row)+1)
		at := float64(i)
		if i < len(index) {
			at = index[i]
		}
		rec = append(rec, format(at))
		for _, v := range row {
			rec = append(rec, format(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// Table is a file read back from a Store
type Table struct {
	Header []string
	Index  []float64
	Rows   [][]float64
}

// Column returns the values under name
func (t Table) Column(name string) ([]float64, bool) {
	for j, h := range t.Header {
		if h != name {
			continue
		}
		out := make([]float64, len(t.Rows))
		for i, r := range t.Rows {
			out[i] = r[j]
		}
		return out, true
	}
	return nil, false
}

// ReadTable parses a file written by the Store
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("csvdb: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("csvdb %s: %w", path, err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	t := Table{Header: records[0][1:]}
	for i, rec := range records[1:] {
		if len(rec) < len(records[0]) {
			return Table{}, fmt.Errorf("%s row %d: %w", path, i, ErrShortRow)
		}
		vals := make([]float64, len(rec))
		for j, s := range rec {
			if vals[j], err = strconv.ParseFloat(s, 64); err != nil {
				return Table{}, fmt.Errorf("%s row %d: %w", path, i, err)
			}
		}
		t.Index = append(t.Index, vals[0])
		t.Rows = append(t.Rows, vals[1:])
	}
	return t, nil
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var nan = math.NaN()
