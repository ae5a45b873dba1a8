package matrix

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned when two artifacts that must line up row for
// row (or column for column) do not.
var ErrShapeMismatch = errors.New("shape mismatch")

// Vector is a sparse row: ascending column indices with their values.
type Vector struct {
	Indices []int
	Values  []float64
}

// Len returns the number of stored entries.
func (v Vector) Len() int {
	return len(v.Indices)
}

// Norm returns the L2 norm of the vector.
func (v Vector) Norm() float64 {
	return floats.Norm(v.Values, 2)
}

// Dot computes the dot product against a dense vector.
// Indices beyond the dense length contribute nothing.
func (v Vector) Dot(dense []float64) float64 {
	var sum float64
	for i, idx := range v.Indices {
		if idx < len(dense) {
			sum += v.Values[i] * dense[idx]
		}
	}
	return sum
}

// Scatter writes the vector into dense, which must be zeroed and wide enough.
func (v Vector) Scatter(dense []float64) {
	for i, idx := range v.Indices {
		dense[idx] = v.Values[i]
	}
}

// CSR is a compressed sparse row matrix. Column indices are sorted within
// each row. A CSR is never modified after it is built; operations that
// change values return a new matrix.
type CSR struct {
	Rows   int
	Cols   int
	RowPtr []int
	ColIdx []int
	Values []float64
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int {
	return len(m.Values)
}

// Row returns row i as a Vector sharing the matrix storage. Callers must not
// modify it.
func (m *CSR) Row(i int) Vector {
	start, end := m.RowPtr[i], m.RowPtr[i+1]
	return Vector{
		Indices: m.ColIdx[start:end],
		Values:  m.Values[start:end],
	}
}

// RowNorms returns the L2 norm of every row.
func (m *CSR) RowNorms() []float64 {
	norms := make([]float64, m.Rows)
	for i := range norms {
		norms[i] = m.Row(i).Norm()
	}
	return norms
}

// NormalizeRows returns a copy of m with every row scaled to unit L2 norm.
// Rows with zero norm are divided by 1 and stay zero.
func (m *CSR) NormalizeRows() *CSR {
	out := m.clone()
	for i := 0; i < out.Rows; i++ {
		start, end := out.RowPtr[i], out.RowPtr[i+1]
		row := out.Values[start:end]
		norm := floats.Norm(row, 2)
		if norm == 0 {
			norm = 1
		}
		floats.Scale(1/norm, row)
	}
	return out
}

// Dense expands the matrix. Only meant for tests and small debugging dumps.
func (m *CSR) Dense() [][]float64 {
	out := make([][]float64, m.Rows)
	for i := range out {
		out[i] = make([]float64, m.Cols)
		m.Row(i).Scatter(out[i])
	}
	return out
}

// Validate checks the structural invariants of the matrix.
func (m *CSR) Validate() error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("invalid dimensions %dx%d", m.Rows, m.Cols)
	}
	if len(m.RowPtr) != m.Rows+1 {
		return fmt.Errorf("row pointer length %d, want %d", len(m.RowPtr), m.Rows+1)
	}
	if len(m.ColIdx) != len(m.Values) {
		return fmt.Errorf("%d column indices for %d values", len(m.ColIdx), len(m.Values))
	}
	if m.RowPtr[0] != 0 || m.RowPtr[m.Rows] != len(m.Values) {
		return fmt.Errorf("row pointers do not span the %d stored values", len(m.Values))
	}
	for i := 0; i < m.Rows; i++ {
		start, end := m.RowPtr[i], m.RowPtr[i+1]
		if start > end {
			return fmt.Errorf("row %d has decreasing pointers", i)
		}
		for j := start; j < end; j++ {
			col := m.ColIdx[j]
			if col < 0 || col >= m.Cols {
				return fmt.Errorf("row %d: column %d out of range", i, col)
			}
			if j > start && m.ColIdx[j-1] >= col {
				return fmt.Errorf("row %d: columns not strictly ascending", i)
			}
		}
	}
	return nil
}

func (m *CSR) clone() *CSR {
	return &CSR{
		Rows:   m.Rows,
		Cols:   m.Cols,
		RowPtr: append([]int(nil), m.RowPtr...),
		ColIdx: append([]int(nil), m.ColIdx...),
		Values: append([]float64(nil), m.Values...),
	}
}

// HStack concatenates a and b side by side. Columns of b are shifted by
// a.Cols.
func HStack(a, b *CSR) (*CSR, error) {
	if a.Rows != b.Rows {
		return nil, fmt.Errorf("%w: cannot stack %d rows beside %d rows", ErrShapeMismatch, a.Rows, b.Rows)
	}

	out := &CSR{
		Rows:   a.Rows,
		Cols:   a.Cols + b.Cols,
		RowPtr: make([]int, a.Rows+1),
		ColIdx: make([]int, 0, a.NNZ()+b.NNZ()),
		Values: make([]float64, 0, a.NNZ()+b.NNZ()),
	}
	for i := 0; i < a.Rows; i++ {
		left, right := a.Row(i), b.Row(i)
		out.ColIdx = append(out.ColIdx, left.Indices...)
		out.Values = append(out.Values, left.Values...)
		for j, idx := range right.Indices {
			out.ColIdx = append(out.ColIdx, idx+a.Cols)
			out.Values = append(out.Values, right.Values[j])
		}
		out.RowPtr[i+1] = len(out.Values)
	}
	return out, nil
}

// Builder assembles a CSR matrix one row at a time.
type Builder struct {
	cols   int
	rowPtr []int
	colIdx []int
	values []float64
}

// NewBuilder creates a builder for a matrix with the given column count.
func NewBuilder(cols int) *Builder {
	return &Builder{
		cols:   cols,
		rowPtr: []int{0},
	}
}

// AddRow appends a row given as column -> value. Columns are emitted in
// ascending order; out-of-range columns and zero values are dropped.
func (b *Builder) AddRow(entries map[int]float64) {
	cols := make([]int, 0, len(entries))
	for col, val := range entries {
		if col < 0 || col >= b.cols || val == 0 {
			continue
		}
		cols = append(cols, col)
	}
	sort.Ints(cols)
	for _, col := range cols {
		b.colIdx = append(b.colIdx, col)
		b.values = append(b.values, entries[col])
	}
	b.rowPtr = append(b.rowPtr, len(b.values))
}

// Build returns the assembled matrix. The builder should not be reused.
func (b *Builder) Build() *CSR {
	return &CSR{
		Rows:   len(b.rowPtr) - 1,
		Cols:   b.cols,
		RowPtr: b.rowPtr,
		ColIdx: b.colIdx,
		Values: b.values,
	}
}
