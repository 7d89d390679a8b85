package onnxeval

import (
	"fmt"

	"github.com/zerfoo/skonnx/internal/onnx"
)

// Tensor is a dense row-major tensor. Exactly one of the data slices is used,
// selected by DType.
type Tensor struct {
	DType   onnx.TensorProto_DataType
	Shape   []int
	Floats  []float32
	Ints    []int64
	Strings []string
}

// FloatMatrix builds a float tensor of shape [len(rows), len(rows[0])].
func FloatMatrix(rows ...[]float32) *Tensor {
	t := &Tensor{DType: onnx.TensorProto_FLOAT, Shape: []int{len(rows), 0}}
	if len(rows) > 0 {
		t.Shape[1] = len(rows[0])
	}
	for _, r := range rows {
		t.Floats = append(t.Floats, r...)
	}
	return t
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Rows returns the leading dimension.
func (t *Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return t.Shape[0]
}

// Row returns the float values of row i of a 2-D float tensor, or nil when
// row i does not exist.
func (t *Tensor) Row(i int) []float32 {
	rows := t.Rows()
	if i < 0 || i >= rows {
		return nil
	}
	cols := t.Len() / rows
	if (i+1)*cols > len(t.Floats) {
		return nil
	}
	return t.Floats[i*cols : (i+1)*cols]
}

// Label renders element i of an int64 or string tensor.
func (t *Tensor) Label(i int) (string, error) {
	if i < 0 || i >= t.Len() {
		return "", fmt.Errorf("label %d out of range for shape %v", i, t.Shape)
	}
	switch t.DType {
	case onnx.TensorProto_INT64:
		return fmt.Sprint(t.Ints[i]), nil
	case onnx.TensorProto_STRING:
		return t.Strings[i], nil
	}
	return "", fmt.Errorf("tensor of %s does not hold labels", t.DType)
}

func (t *Tensor) check() error {
	n := t.Len()
	var got int
	switch t.DType {
	case onnx.TensorProto_FLOAT:
		got = len(t.Floats)
	case onnx.TensorProto_INT64:
		got = len(t.Ints)
	case onnx.TensorProto_STRING:
		got = len(t.Strings)
	default:
		return fmt.Errorf("unsupported tensor type %s", t.DType)
	}
	if got != n {
		return fmt.Errorf("tensor of shape %v holds %d values", t.Shape, got)
	}
	return nil
}

// MapSeq is a sequence of label -> probability maps, one per row, as produced
// by ZipMap. Keys keeps the label order of the producing node.
type MapSeq struct {
	Keys   []string
	Values [][]float32
}

// Get returns the value stored under key in row i.
func (m *MapSeq) Get(i int, key string) (float32, bool) {
	for k, name := range m.Keys {
		if name == key {
			return m.Values[i][k], true
		}
	}
	return 0, false
}
