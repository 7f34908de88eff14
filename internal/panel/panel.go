// Package panel provides period × instrument matrices aligned on a shared
// period axis and instrument universe. Missing values are NaN, never zero.
package panel

import (
	"fmt"
	"math"

	"github.com/newthinker/statarb/internal/core"
)

// Panel is a row-major matrix of float64 values indexed by period key and
// instrument column.
type Panel struct {
	Periods []int
	Columns []string
	Data    [][]float64

	index map[string]int
}

// New allocates a NaN-filled panel over the given axes.
func New(periods []int, columns []string) *Panel {
	data := make([][]float64, len(periods))
	for t := range data {
		row := make([]float64, len(columns))
		for i := range row {
			row[i] = math.NaN()
		}
		data[t] = row
	}
	return &Panel{
		Periods: append([]int(nil), periods...),
		Columns: append([]string(nil), columns...),
		Data:    data,
		index:   indexOf(columns),
	}
}

// FromRows builds a panel from existing rows after checking the axes.
func FromRows(periods []int, columns []string, rows [][]float64) (*Panel, error) {
	if err := checkAxes(periods, columns); err != nil {
		return nil, err
	}
	if len(rows) != len(periods) {
		return nil, core.Errorf(core.ErrShapeMismatch, "%d rows for %d periods", len(rows), len(periods))
	}
	data := make([][]float64, len(rows))
	for t, row := range rows {
		if len(row) != len(columns) {
			return nil, core.Errorf(core.ErrShapeMismatch, "row %d has %d values for %d columns", t, len(row), len(columns))
		}
		data[t] = append([]float64(nil), row...)
	}
	return &Panel{
		Periods: append([]int(nil), periods...),
		Columns: append([]string(nil), columns...),
		Data:    data,
		index:   indexOf(columns),
	}, nil
}

func indexOf(columns []string) map[string]int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return index
}

func checkAxes(periods []int, columns []string) error {
	for t := 1; t < len(periods); t++ {
		if periods[t] <= periods[t-1] {
			return core.Errorf(core.ErrShapeMismatch, "period keys not strictly increasing at %d (%d after %d)", t, periods[t], periods[t-1])
		}
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return core.Errorf(core.ErrShapeMismatch, "duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// Len returns the number of periods.
func (p *Panel) Len() int { return len(p.Periods) }

// Width returns the number of columns.
func (p *Panel) Width() int { return len(p.Columns) }

// Row returns the values at period index t. The slice aliases panel storage.
func (p *Panel) Row(t int) []float64 { return p.Data[t] }

// At returns the value at period index t and column index i.
func (p *Panel) At(t, i int) float64 { return p.Data[t][i] }

// Set stores v at period index t and column index i.
func (p *Panel) Set(t, i int, v float64) { p.Data[t][i] = v }

// ColumnIndex returns the position of column c.
func (p *Panel) ColumnIndex(c string) (int, bool) {
	if p.index == nil {
		p.index = indexOf(p.Columns)
	}
	i, ok := p.index[c]
	return i, ok
}

// Column copies the series of column c.
func (p *Panel) Column(c string) ([]float64, bool) {
	i, ok := p.ColumnIndex(c)
	if !ok {
		return nil, false
	}
	out := make([]float64, p.Len())
	for t := range out {
		out[t] = p.Data[t][i]
	}
	return out, true
}

// Select returns a copy restricted to and ordered by columns. Columns absent
// from p are NaN.
func (p *Panel) Select(columns []string) *Panel {
	out := New(p.Periods, columns)
	for j, c := range columns {
		i, ok := p.ColumnIndex(c)
		if !ok {
			continue
		}
		for t := range out.Data {
			out.Data[t][j] = p.Data[t][i]
		}
	}
	return out
}

// AlignPeriods returns a copy reindexed to keys. Periods absent from p are NaN.
func (p *Panel) AlignPeriods(keys []int) *Panel {
	pos := make(map[int]int, len(p.Periods))
	for t, k := range p.Periods {
		pos[k] = t
	}
	out := New(keys, p.Columns)
	for t, k := range keys {
		if src, ok := pos[k]; ok {
			copy(out.Data[t], p.Data[src])
		}
	}
	return out
}

// SameAxis reports a shape mismatch when other does not share p's periods and
// columns in the same order.
func (p *Panel) SameAxis(other *Panel) error {
	return sameAxis(p.Periods, p.Columns, other.Periods, other.Columns)
}

func sameAxis(periods []int, columns []string, otherPeriods []int, otherColumns []string) error {
	if len(periods) != len(otherPeriods) {
		return core.Errorf(core.ErrShapeMismatch, "%d periods vs %d", len(periods), len(otherPeriods))
	}
	for t := range periods {
		if periods[t] != otherPeriods[t] {
			return core.Errorf(core.ErrShapeMismatch, "period %d is %d vs %d", t, periods[t], otherPeriods[t])
		}
	}
	if len(columns) != len(otherColumns) {
		return core.Errorf(core.ErrShapeMismatch, "%d columns vs %d", len(columns), len(otherColumns))
	}
	for i := range columns {
		if columns[i] != otherColumns[i] {
			return core.Errorf(core.ErrShapeMismatch, "column %d is %q vs %q", i, columns[i], otherColumns[i])
		}
	}
	return nil
}

// PctChange returns p[t]/p[t-k]-1 computed on the forward-filled series.
// Rows before k, and bases that are missing or non-positive, are NaN.
func (p *Panel) PctChange(k int) *Panel {
	if k < 1 {
		k = 1
	}
	filled := p.FFill()
	out := New(p.Periods, p.Columns)
	for t := k; t < p.Len(); t++ {
		for i := range p.Columns {
			base, cur := filled.Data[t-k][i], filled.Data[t][i]
			if math.IsNaN(base) || math.IsNaN(cur) || base <= 0 {
				continue
			}
			out.Data[t][i] = cur/base - 1
		}
	}
	return out
}

// FFill returns a copy with missing values replaced by the last valid value
// in the same column.
func (p *Panel) FFill() *Panel {
	out := New(p.Periods, p.Columns)
	last := make([]float64, p.Width())
	for i := range last {
		last[i] = math.NaN()
	}
	for t, row := range p.Data {
		for i, v := range row {
			if !math.IsNaN(v) {
				last[i] = v
			}
			out.Data[t][i] = last[i]
		}
	}
	return out
}

// Negate returns -p.
func (p *Panel) Negate() *Panel {
	out := New(p.Periods, p.Columns)
	for t, row := range p.Data {
		for i, v := range row {
			out.Data[t][i] = -v
		}
	}
	return out
}

// Intersect returns the columns present in every set, in the order of the
// first set.
func Intersect(sets ...[]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		seen := make(map[string]struct{}, len(set))
		for _, c := range set {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			counts[c]++
		}
	}
	var out []string
	for _, c := range sets[0] {
		if counts[c] == len(sets) {
			out = append(out, c)
			counts[c] = 0
		}
	}
	return out
}

// Valid reports whether v is a usable observation.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AnyValid reports whether row holds at least one usable observation.
func AnyValid(row []float64) bool {
	for _, v := range row {
		if Valid(v) {
			return true
		}
	}
	return false
}

// Clean maps NaN and ±Inf to zero.
func Clean(v float64) float64 {
	if Valid(v) {
		return v
	}
	return 0
}

func (p *Panel) String() string {
	return fmt.Sprintf("Panel(%d periods × %d columns)", p.Len(), p.Width())
}
