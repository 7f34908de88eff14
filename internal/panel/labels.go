package panel

import "github.com/newthinker/statarb/internal/core"

// Labels is a period × instrument matrix of categorical values, used for the
// per-period sector assignment. An empty string marks a missing label.
type Labels struct {
	Periods []int
	Columns []string
	Data    [][]string

	index map[string]int
}

// NewLabels allocates an empty label matrix over the given axes.
func NewLabels(periods []int, columns []string) *Labels {
	data := make([][]string, len(periods))
	for t := range data {
		data[t] = make([]string, len(columns))
	}
	return &Labels{
		Periods: append([]int(nil), periods...),
		Columns: append([]string(nil), columns...),
		Data:    data,
		index:   indexOf(columns),
	}
}

// LabelsFromRows builds a label matrix from existing rows after checking the axes.
func LabelsFromRows(periods []int, columns []string, rows [][]string) (*Labels, error) {
	if err := checkAxes(periods, columns); err != nil {
		return nil, err
	}
	if len(rows) != len(periods) {
		return nil, core.Errorf(core.ErrShapeMismatch, "%d label rows for %d periods", len(rows), len(periods))
	}
	out := NewLabels(periods, columns)
	for t, row := range rows {
		if len(row) != len(columns) {
			return nil, core.Errorf(core.ErrShapeMismatch, "label row %d has %d values for %d columns", t, len(row), len(columns))
		}
		copy(out.Data[t], row)
	}
	return out, nil
}

// Len returns the number of periods.
func (l *Labels) Len() int { return len(l.Periods) }

// Row returns the labels at period index t.
func (l *Labels) Row(t int) []string { return l.Data[t] }

// ColumnIndex returns the position of column c.
func (l *Labels) ColumnIndex(c string) (int, bool) {
	if l.index == nil {
		l.index = indexOf(l.Columns)
	}
	i, ok := l.index[c]
	return i, ok
}

// Select returns a copy restricted to and ordered by columns.
func (l *Labels) Select(columns []string) *Labels {
	out := NewLabels(l.Periods, columns)
	for j, c := range columns {
		i, ok := l.ColumnIndex(c)
		if !ok {
			continue
		}
		for t := range out.Data {
			out.Data[t][j] = l.Data[t][i]
		}
	}
	return out
}

// SameAxis reports a shape mismatch against a numeric panel's axes.
func (l *Labels) SameAxis(p *Panel) error {
	return sameAxis(l.Periods, l.Columns, p.Periods, p.Columns)
}

// Broadcast maps a label-level table (periods × labels) onto instruments:
// each instrument takes the value of its label in the same period. Periods
// are matched by key; unmatched periods and unknown labels are NaN.
func Broadcast(table *Panel, labels *Labels) *Panel {
	aligned := table.AlignPeriods(labels.Periods)
	out := New(labels.Periods, labels.Columns)
	for t, row := range labels.Data {
		for i, label := range row {
			if label == "" {
				continue
			}
			if j, ok := aligned.ColumnIndex(label); ok {
				out.Data[t][i] = aligned.Data[t][j]
			}
		}
	}
	return out
}
