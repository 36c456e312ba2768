package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

var matrixMagic = [4]byte{'F', 'S', 'V', 'M'}

const matrixFormatVersion uint32 = 1

// ErrBadMatrix is returned for truncated or foreign matrix files.
var ErrBadMatrix = errors.New("invalid vector matrix file")

// WriteMatrix writes rows of equal dimension. Layout (little endian): magic,
// format version, dims, rows, then rows*dims float32 values.
func WriteMatrix(w io.Writer, dims int, rows [][]float32) error {
	bw := bufio.NewWriter(w)
	header := []uint32{matrixFormatVersion, uint32(dims), uint32(len(rows))}
	if _, err := bw.Write(matrixMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, dims*4)
	for i, row := range rows {
		if len(row) != dims {
			return fmt.Errorf("row %d has dimension %d, expected %d", i, len(row), dims)
		}
		for j, v := range row {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadMatrix reads a matrix written by WriteMatrix.
func ReadMatrix(r io.Reader) (dims int, rows [][]float32, err error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || magic != matrixMagic {
		return 0, nil, ErrBadMatrix
	}
	var header [3]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBadMatrix, err)
	}
	if header[0] != matrixFormatVersion {
		return 0, nil, fmt.Errorf("%w: format version %d", ErrBadMatrix, header[0])
	}
	dims = int(header[1])
	n := int(header[2])
	if dims <= 0 && n > 0 {
		return 0, nil, fmt.Errorf("%w: zero dimension", ErrBadMatrix)
	}
	rows = make([][]float32, n)
	buf := make([]byte, dims*4)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return 0, nil, fmt.Errorf("%w: row %d: %v", ErrBadMatrix, i, err)
		}
		row := make([]float32, dims)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		rows[i] = row
	}
	return dims, rows, nil
}

// SaveMatrixFile writes the matrix to path, creating parent directories.
func SaveMatrixFile(path string, dims int, rows [][]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create matrix dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create matrix file: %w", err)
	}
	if err := WriteMatrix(f, dims, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadMatrixFile reads a matrix file.
func LoadMatrixFile(path string) (int, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	return ReadMatrix(f)
}
