package pyobj

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NDArray is a reconstructed numpy array. Numeric and structured arrays keep
// their raw buffer; object arrays keep the unpickled elements.
type NDArray struct {
	Shape   []int
	DType   *DType
	Fortran bool
	Data    []byte
	Objects []interface{}
}

type ndarrayClass struct{}

// reconstructFunc is numpy.core.multiarray._reconstruct(cls, shape, typecode).
// The array content arrives afterwards through BUILD.
type reconstructFunc struct{}

func (reconstructFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("_reconstruct: missing class")
	}
	if _, ok := args[0].(ndarrayClass); !ok {
		return nil, fmt.Errorf("_reconstruct: unsupported array subclass %v", args[0])
	}
	return &NDArray{}, nil
}

// frombufferFunc is numpy.core.numeric._frombuffer(buf, dtype, shape, order),
// emitted for protocol 5 pickles.
type frombufferFunc struct{}

func (frombufferFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("_frombuffer: expected 4 arguments, got %d", len(args))
	}
	data, err := Bytes(args[0])
	if err != nil {
		return nil, fmt.Errorf("_frombuffer: %w", err)
	}
	dt, ok := args[1].(*DType)
	if !ok {
		return nil, fmt.Errorf("_frombuffer: dtype is %T", args[1])
	}
	shape, err := Ints(args[2])
	if err != nil {
		return nil, fmt.Errorf("_frombuffer: shape: %w", err)
	}
	order, _ := args[3].(string)
	a := &NDArray{Shape: shape, DType: dt, Fortran: order == "F", Data: data}
	return a, a.checkSize()
}

// PySetState restores ([version,] shape, dtype, is_fortran, rawdata).
func (a *NDArray) PySetState(state interface{}) error {
	items, err := Slice(state)
	if err != nil {
		return fmt.Errorf("ndarray state: %w", err)
	}
	if len(items) == 5 {
		items = items[1:]
	}
	if len(items) != 4 {
		return fmt.Errorf("ndarray state has %d items", len(items))
	}
	if a.Shape, err = Ints(items[0]); err != nil {
		return fmt.Errorf("ndarray shape: %w", err)
	}
	dt, ok := items[1].(*DType)
	if !ok {
		return fmt.Errorf("ndarray dtype is %T", items[1])
	}
	a.DType = dt
	a.Fortran, _ = items[2].(bool)
	if dt.Kind == 'O' {
		if a.Objects, err = Slice(items[3]); err != nil {
			return fmt.Errorf("object array data: %w", err)
		}
		if len(a.Objects) != a.Len() {
			return fmt.Errorf("object array has %d items, shape %v", len(a.Objects), a.Shape)
		}
		return nil
	}
	if a.Data, err = Bytes(items[3]); err != nil {
		return fmt.Errorf("ndarray data: %w", err)
	}
	return a.checkSize()
}

func (a *NDArray) checkSize() error {
	if a.DType.Kind == 'O' {
		return fmt.Errorf("object arrays cannot be built from a buffer")
	}
	if want := a.Len() * a.DType.Size; len(a.Data) != want {
		return fmt.Errorf("ndarray buffer has %d bytes, want %d for shape %v %s", len(a.Data), want, a.Shape, a.DType)
	}
	return nil
}

// Len returns the number of elements.
func (a *NDArray) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// index maps a C-order element position to its position in storage.
func (a *NDArray) index(i int) int {
	if !a.Fortran || len(a.Shape) < 2 {
		return i
	}
	// decompose i in C order, recompose in Fortran order
	rem := i
	coords := make([]int, len(a.Shape))
	for k := len(a.Shape) - 1; k >= 0; k-- {
		coords[k] = rem % a.Shape[k]
		rem /= a.Shape[k]
	}
	j, stride := 0, 1
	for k := range a.Shape {
		j += coords[k] * stride
		stride *= a.Shape[k]
	}
	return j
}

func (a *NDArray) element(i int) []byte {
	off := a.index(i) * a.DType.Size
	return a.Data[off : off+a.DType.Size]
}

// Float64s returns the elements in C order.
func (a *NDArray) Float64s() ([]float64, error) {
	out := make([]float64, a.Len())
	if a.DType.Kind == 'O' {
		for i, o := range a.Objects {
			f, err := Float(o)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	}
	if !a.DType.numeric() {
		return nil, fmt.Errorf("dtype %s is not numeric", a.DType)
	}
	for i := range out {
		f, err := a.DType.float(a.element(i))
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Int64s returns the elements in C order. Floats must be integral.
func (a *NDArray) Int64s() ([]int64, error) {
	out := make([]int64, a.Len())
	if a.DType.Kind == 'O' {
		for i, o := range a.Objects {
			n, err := Int(o)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	if !a.DType.numeric() {
		return nil, fmt.Errorf("dtype %s is not numeric", a.DType)
	}
	for i := range out {
		n, err := a.DType.int(a.element(i))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Strings returns the elements of an object, bytes or unicode array.
func (a *NDArray) Strings() ([]string, error) {
	out := make([]string, a.Len())
	switch a.DType.Kind {
	case 'O':
		for i, o := range a.Objects {
			s, err := String(o)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
	case 'S':
		for i := range out {
			out[i] = strings.TrimRight(string(a.element(i)), "\x00")
		}
	case 'U':
		o := a.DType.order()
		for i := range out {
			b := a.element(i)
			var sb strings.Builder
			for k := 0; k+4 <= len(b); k += 4 {
				r := rune(o.Uint32(b[k:]))
				if r == 0 {
					break
				}
				if !utf8.ValidRune(r) {
					return nil, fmt.Errorf("invalid code point %U", r)
				}
				sb.WriteRune(r)
			}
			out[i] = sb.String()
		}
	default:
		return nil, fmt.Errorf("dtype %s does not hold strings", a.DType)
	}
	return out, nil
}

// HasField reports whether a structured array has the named field.
func (a *NDArray) HasField(name string) bool {
	_, ok := a.DType.Fields[name]
	return ok
}

func (a *NDArray) field(name string) (Field, error) {
	f, ok := a.DType.Fields[name]
	if !ok {
		return Field{}, fmt.Errorf("array %s has no field %q", a.DType, name)
	}
	if !f.DType.numeric() {
		return Field{}, fmt.Errorf("field %q has non-numeric dtype %s", name, f.DType)
	}
	if f.Offset+f.DType.Size > a.DType.Size {
		return Field{}, fmt.Errorf("field %q overruns record size %d", name, a.DType.Size)
	}
	return f, nil
}

// FieldFloat64s returns one field of every record of a structured array.
func (a *NDArray) FieldFloat64s(name string) ([]float64, error) {
	f, err := a.field(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, a.Len())
	for i := range out {
		rec := a.element(i)
		if out[i], err = f.DType.float(rec[f.Offset : f.Offset+f.DType.Size]); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}
	return out, nil
}

// FieldInt64s returns one integer field of every record of a structured array.
func (a *NDArray) FieldInt64s(name string) ([]int64, error) {
	f, err := a.field(name)
	if err != nil {
		return nil, err
	}
	out := make([]int64, a.Len())
	for i := range out {
		rec := a.element(i)
		if out[i], err = f.DType.int(rec[f.Offset : f.Offset+f.DType.Size]); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}
	return out, nil
}
