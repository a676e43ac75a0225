// Package history records per-tick attribute values of simulated components.
package history

import "sort"

// Log is an append-only set of named series
type Log struct {
	series map[string][]float64
}

// New returns an empty Log
func New() *Log {
	return &Log{series: make(map[string][]float64)}
}

// Record appends v to the series attr. A nil Log discards the value.
func (l *Log) Record(attr string, v float64) {
	if l == nil {
		return
	}
	l.series[attr] = append(l.series[attr], v)
}

// RecordBool appends 1 for true and 0 for false
func (l *Log) RecordBool(attr string, v bool) {
	if v {
		l.Record(attr, 1)
		return
	}
	l.Record(attr, 0)
}

// Series returns the values recorded for attr
func (l *Log) Series(attr string) []float64 {
	if l == nil {
		return nil
	}
	return l.series[attr]
}

// Attributes lists the recorded attribute names in sorted order
func (l *Log) Attributes() []string {
	if l == nil {
		return nil
	}
	attrs := make([]string, 0, len(l.series))
	for a := range l.series {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	return attrs
}

// Len is the length of the longest series
func (l *Log) Len() int {
	n := 0
	if l == nil {
		return n
	}
	for _, s := range l.series {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

// Owner is implemented by anything that keeps a history
type Owner interface {
	Name() string
	History() *Log
}
