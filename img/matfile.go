package img

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// MAT-file level 5 data types
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
)

// array classes with a plain numeric real part
const (
	mxCHAR_CLASS   = 4
	mxDOUBLE_CLASS = 6
	mxUINT64_CLASS = 15
)

const matHeaderSize = 128

// Matrix is a numeric variable read from a MAT file. Data is in column major order.
type Matrix struct {
	Name string
	Dims []int
	Data []float64
}

// At returns element at row i, column j of a 2d matrix.
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i+j*m.Dims[0]]
}

// ReadMat decodes the numeric variables from a MATLAB level 5 MAT file.
// Cell arrays, structures, objects and sparse matrices are skipped.
func ReadMat(r io.Reader) (map[string]*Matrix, error) {
	head := make([]byte, matHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, errors.Wrap(err, "error reading MAT header")
	}
	var order binary.ByteOrder
	switch string(head[126:128]) {
	case "IM":
		order = binary.LittleEndian
	case "MI":
		order = binary.BigEndian
	default:
		return nil, errors.New("not a level 5 MAT file")
	}
	vars := make(map[string]*Matrix)
	if err := readElements(r, order, vars); err != nil {
		return nil, err
	}
	return vars, nil
}

func readElements(r io.Reader, order binary.ByteOrder, vars map[string]*Matrix) error {
	for {
		typ, data, err := readElement(r, order)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch typ {
		case miCOMPRESSED:
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return errors.Wrap(err, "error decompressing MAT element")
			}
			err = readElements(zr, order, vars)
			zr.Close()
			if err != nil {
				return err
			}
		case miMATRIX:
			m, err := parseMatrix(data, order)
			if err != nil {
				return err
			}
			if m != nil {
				vars[m.Name] = m
			}
		}
	}
}

// read the tag and data for the next element, skipping any padding
func readElement(r io.Reader, order binary.ByteOrder) (typ uint32, data []byte, err error) {
	tag := make([]byte, 8)
	if _, err = io.ReadFull(r, tag); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = errors.New("truncated MAT element tag")
		}
		return
	}
	typ = order.Uint32(tag[0:4])
	if size := typ >> 16; size != 0 {
		// small data element packed into the tag
		if size > 4 {
			return 0, nil, errors.Errorf("invalid small element size %d", size)
		}
		return typ & 0xffff, tag[4 : 4+size], nil
	}
	size := order.Uint32(tag[4:8])
	// grow the buffer as data arrives rather than trusting the size field
	data, err = io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return 0, nil, errors.Wrap(err, "error reading MAT element")
	}
	if uint32(len(data)) != size {
		return 0, nil, errors.Errorf("truncated MAT element: got %d of %d bytes", len(data), size)
	}
	if typ != miCOMPRESSED {
		if pad := (8 - size%8) % 8; pad > 0 {
			if _, err = io.CopyN(io.Discard, r, int64(pad)); err != nil && err != io.EOF {
				return 0, nil, errors.Wrap(err, "error reading MAT padding")
			}
			err = nil
		}
	}
	return typ, data, nil
}

func parseMatrix(data []byte, order binary.ByteOrder) (*Matrix, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(data)
	_, flags, err := readElement(r, order)
	if err != nil {
		return nil, errors.Wrap(err, "error reading array flags")
	}
	if len(flags) < 4 {
		return nil, errors.New("invalid array flags")
	}
	class := order.Uint32(flags[0:4]) & 0xff
	if class < mxCHAR_CLASS || class > mxUINT64_CLASS || class == mxCHAR_CLASS+1 {
		return nil, nil
	}
	typ, dimData, err := readElement(r, order)
	if err != nil {
		return nil, errors.Wrap(err, "error reading array dimensions")
	}
	dimVals, err := decodeNumeric(typ, dimData, order)
	if err != nil {
		return nil, err
	}
	m := &Matrix{Dims: make([]int, len(dimVals))}
	for i, d := range dimVals {
		m.Dims[i] = int(d)
	}
	_, name, err := readElement(r, order)
	if err != nil {
		return nil, errors.Wrap(err, "error reading array name")
	}
	m.Name = string(name)
	typ, values, err := readElement(r, order)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading data for %s", m.Name)
	}
	if m.Data, err = decodeNumeric(typ, values, order); err != nil {
		return nil, errors.Wrapf(err, "error decoding %s", m.Name)
	}
	size := 1
	for _, d := range m.Dims {
		size *= d
	}
	if size != len(m.Data) {
		return nil, errors.Errorf("%s: got %d values for dims %v", m.Name, len(m.Data), m.Dims)
	}
	return m, nil
}

func decodeNumeric(typ uint32, data []byte, order binary.ByteOrder) ([]float64, error) {
	var width int
	switch typ {
	case miINT8, miUINT8:
		width = 1
	case miINT16, miUINT16:
		width = 2
	case miINT32, miUINT32, miSINGLE:
		width = 4
	case miDOUBLE, miINT64, miUINT64:
		width = 8
	default:
		return nil, errors.Errorf("unsupported MAT data type %d", typ)
	}
	if len(data)%width != 0 {
		return nil, errors.Errorf("data length %d is not a multiple of %d", len(data), width)
	}
	res := make([]float64, len(data)/width)
	for i := range res {
		b := data[i*width : (i+1)*width]
		switch typ {
		case miINT8:
			res[i] = float64(int8(b[0]))
		case miUINT8:
			res[i] = float64(b[0])
		case miINT16:
			res[i] = float64(int16(order.Uint16(b)))
		case miUINT16:
			res[i] = float64(order.Uint16(b))
		case miINT32:
			res[i] = float64(int32(order.Uint32(b)))
		case miUINT32:
			res[i] = float64(order.Uint32(b))
		case miSINGLE:
			res[i] = float64(math.Float32frombits(order.Uint32(b)))
		case miDOUBLE:
			res[i] = math.Float64frombits(order.Uint64(b))
		case miINT64:
			res[i] = float64(int64(order.Uint64(b)))
		case miUINT64:
			res[i] = float64(order.Uint64(b))
		}
	}
	return res, nil
}
