package npyfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// maxElements bounds the values a single matrix may declare (1 GiB of float32).
const maxElements = 1 << 28

// Rows are read in chunks so a lying header fails on a short body instead of
// allocating up front.
const preallocElements = 1 << 16

var (
	descrPattern   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// ReadMatrix decodes a 1.x/2.x/3.x .npy file holding a C-ordered little-endian
// float32 or float64 array with one or two dimensions.
func ReadMatrix(r io.Reader) (Matrix, error) {
	br := bufio.NewReader(r)

	prefix := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return Matrix{}, fmt.Errorf("read npy preamble: %w", err)
	}
	if !bytes.Equal(prefix[:len(npyMagic)], npyMagic) {
		return Matrix{}, errors.New("not an npy file")
	}

	var headerLen int
	switch major := prefix[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Matrix{}, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Matrix{}, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return Matrix{}, fmt.Errorf("unsupported npy version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return Matrix{}, fmt.Errorf("read npy header: %w", err)
	}
	descr, rows, cols, err := parseHeader(string(header))
	if err != nil {
		return Matrix{}, err
	}

	var width int
	switch descr {
	case "<f4":
		width = 4
	case "<f8":
		width = 8
	default:
		return Matrix{}, fmt.Errorf("unsupported npy dtype %q", descr)
	}

	hi, total := bits.Mul64(uint64(rows), uint64(cols))
	if hi != 0 || total > maxElements || uint64(rows) > maxElements || uint64(cols) > maxElements {
		return Matrix{}, fmt.Errorf("npy shape (%d, %d) exceeds %d elements", rows, cols, maxElements)
	}

	data := make([]float32, 0, min(int(total), preallocElements))
	raw := make([]byte, cols*width)
	for row := 0; row < rows; row++ {
		if _, err := io.ReadFull(br, raw); err != nil {
			return Matrix{}, fmt.Errorf("read npy row %d: %w", row, err)
		}
		for i := 0; i < cols; i++ {
			if width == 4 {
				data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
				continue
			}
			data = append(data, float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))))
		}
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

func parseHeader(header string) (string, int, int, error) {
	descr := descrPattern.FindStringSubmatch(header)
	if descr == nil {
		return "", 0, 0, errors.New("npy header missing descr")
	}
	if fortran := fortranPattern.FindStringSubmatch(header); fortran != nil && fortran[1] == "True" {
		return "", 0, 0, errors.New("fortran-ordered npy arrays are not supported")
	}
	shape := shapePattern.FindStringSubmatch(header)
	if shape == nil {
		return "", 0, 0, errors.New("npy header missing shape")
	}

	dims := make([]int, 0, 2)
	for _, part := range strings.Split(shape[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("invalid npy shape %q", shape[1])
		}
		dims = append(dims, n)
	}

	switch len(dims) {
	case 1:
		if dims[0] != 0 {
			return "", 0, 0, fmt.Errorf("expected a 2-d embedding array, got shape (%d,)", dims[0])
		}
		return descr[1], 0, 0, nil
	case 2:
		return descr[1], dims[0], dims[1], nil
	default:
		return "", 0, 0, fmt.Errorf("expected a 2-d embedding array, got %d dimensions", len(dims))
	}
}

// WriteMatrix encodes rows as a version 1.0 little-endian float32 .npy file.
func WriteMatrix(w io.Writer, rows [][]float32) error {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	for i, row := range rows {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(rows), cols)
	preamble := len(npyMagic) + 2 + 2
	pad := 64 - (preamble+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(npyMagic); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := bw.WriteString(header); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, row := range rows {
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
