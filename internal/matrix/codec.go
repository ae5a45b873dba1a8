package matrix

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion uint16 = 1

// maxDimension caps header dimensions at the int32 range.
const maxDimension = 1 << 31

// chunkElems is how many elements Decode reads per step. Sections grow with
// the bytes actually present, not with the sizes a header claims.
const chunkElems = 1 << 16

var magic = [4]byte{'M', 'M', 'F', 'X'}

var (
	ErrBadMagic           = errors.New("not a feature matrix file")
	ErrUnsupportedVersion = errors.New("unsupported feature matrix format version")
)

type header struct {
	Magic   [4]byte
	Version uint16
	BuildID [16]byte
	Rows    uint64
	Cols    uint64
	NNZ     uint64
}

// Encode writes m in the little-endian feature matrix format, tagged with the
// build that produced it.
func Encode(w io.Writer, m *CSR, buildID uuid.UUID) error {
	bw := bufio.NewWriter(w)
	h := header{
		Magic:   magic,
		Version: FormatVersion,
		BuildID: buildID,
		Rows:    uint64(m.Rows),
		Cols:    uint64(m.Cols),
		NNZ:     uint64(m.NNZ()),
	}
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	rowPtr := make([]uint64, len(m.RowPtr))
	for i, p := range m.RowPtr {
		rowPtr[i] = uint64(p)
	}
	colIdx := make([]uint32, len(m.ColIdx))
	for i, c := range m.ColIdx {
		colIdx[i] = uint32(c)
	}

	for _, section := range []any{rowPtr, colIdx, m.Values} {
		if err := binary.Write(bw, binary.LittleEndian, section); err != nil {
			return fmt.Errorf("failed to write matrix data: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads a matrix written by Encode and validates its structure.
func Decode(r io.Reader) (*CSR, uuid.UUID, error) {
	br := bufio.NewReader(r)

	var h header
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.Magic != magic {
		return nil, uuid.Nil, ErrBadMagic
	}
	if h.Version != FormatVersion {
		return nil, uuid.Nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Rows >= maxDimension || h.Cols >= maxDimension || h.NNZ >= maxDimension {
		return nil, uuid.Nil, fmt.Errorf("header dimensions out of range: %dx%d with %d entries", h.Rows, h.Cols, h.NNZ)
	}

	rowPtr, err := readSection[uint64](br, h.Rows+1)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to read row pointers: %w", err)
	}
	colIdx, err := readSection[uint32](br, h.NNZ)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to read column indices: %w", err)
	}
	values, err := readSection[float64](br, h.NNZ)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to read values: %w", err)
	}

	m := &CSR{
		Rows:   int(h.Rows),
		Cols:   int(h.Cols),
		RowPtr: make([]int, len(rowPtr)),
		ColIdx: make([]int, len(colIdx)),
		Values: values,
	}
	for i, p := range rowPtr {
		m.RowPtr[i] = int(p)
	}
	for i, c := range colIdx {
		m.ColIdx[i] = int(c)
	}
	if err := m.Validate(); err != nil {
		return nil, uuid.Nil, fmt.Errorf("corrupt feature matrix: %w", err)
	}
	return m, uuid.UUID(h.BuildID), nil
}

func readSection[T uint64 | uint32 | float64](r io.Reader, n uint64) ([]T, error) {
	out := make([]T, 0, min(n, chunkElems))
	for uint64(len(out)) < n {
		chunk := make([]T, min(n-uint64(len(out)), chunkElems))
		if err := binary.Read(r, binary.LittleEndian, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
