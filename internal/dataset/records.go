// Package dataset reads and writes the long-format parquet tables behind a
// backtest and pivots them into panels.
package dataset

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// Observation is one instrument in one period, the on-disk schema of the
// universe table. Zero prices and empty industries are missing values.
type Observation struct {
	Period   int64   `parquet:"period"`
	Ticker   string  `parquet:"ticker"`
	Price    float64 `parquet:"prc,optional"`
	Bid      float64 `parquet:"bidlo,optional"`
	Ask      float64 `parquet:"askhi,optional"`
	Volume   float64 `parquet:"vol,optional"`
	Industry string  `parquet:"industry,optional"`
}

// Cell is one value of a period × column table in long format. Absent cells
// are missing values.
type Cell struct {
	Period int64   `parquet:"period"`
	Column string  `parquet:"column"`
	Value  float64 `parquet:"value"`
}

// Decode reads every row of a parquet blob.
func Decode[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding parquet: %w", err)
	}
	return rows, nil
}

// Encode writes rows as a parquet blob.
func Encode[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, fmt.Errorf("encoding parquet: %w", err)
	}
	return buf.Bytes(), nil
}
