package pickletest

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

var (
	ndarray     = Global{"numpy", "ndarray"}
	dtype       = Global{"numpy", "dtype"}
	reconstruct = Global{"numpy.core.multiarray", "_reconstruct"}
	scalar      = Global{"numpy.core.multiarray", "scalar"}
	fromBuffer  = Global{"numpy.core.numeric", "_frombuffer"}
)

// DType pickles numpy.dtype(spec), e.g. "f8", "i8", "u1" or "O8".
func DType(spec string) Reduce {
	order := "<"
	if spec[0] == 'O' || strings.HasSuffix(spec, "1") && len(spec) == 2 {
		order = "|"
	}
	return Reduce{
		Callable: dtype,
		Args:     Tuple{spec, false, true},
		State:    Tuple{3, order, nil, nil, nil, -1, -1, 0},
	}
}

// StructField describes one member of a structured dtype.
type StructField struct {
	Name   string
	Spec   string
	Offset int
}

// StructDType pickles a structured (void) dtype.
func StructDType(itemsize int, fields ...StructField) Reduce {
	names := make(Tuple, len(fields))
	desc := make(Dict, len(fields))
	for i, f := range fields {
		names[i] = f.Name
		desc[i] = Item{Key: f.Name, Value: Tuple{DType(f.Spec), f.Offset}}
	}
	return Reduce{
		Callable: dtype,
		Args:     Tuple{"V" + strconv.Itoa(itemsize), false, true},
		State:    Tuple{3, "|", nil, names, desc, itemsize, 8, 16},
	}
}

// Array pickles an ndarray the way numpy's __reduce__ does.
func Array(dt Reduce, shape []int, data interface{}) Reduce {
	s := make(Tuple, len(shape))
	for i, d := range shape {
		s[i] = d
	}
	return Reduce{
		Callable: reconstruct,
		Args:     Tuple{ndarray, Tuple{0}, []byte("b")},
		State:    Tuple{1, s, dt, false, data},
	}
}

// frombuffer rewrites an Array reduction into the protocol 5 form numpy uses
// for arrays with a raw buffer. Object arrays keep _reconstruct.
func frombuffer(r Reduce) (Reduce, bool) {
	if r.Callable != reconstruct {
		return r, false
	}
	state, ok := r.State.(Tuple)
	if !ok || len(state) != 5 {
		return r, false
	}
	data, ok := state[4].([]byte)
	if !ok {
		return r, false
	}
	order := "C"
	if fortran, _ := state[3].(bool); fortran {
		order = "F"
	}
	return Reduce{Callable: fromBuffer, Args: Tuple{ByteArray(data), state[2], state[1], order}}, true
}

// Float64Array pickles a float64 array of the given shape. A nil shape is 1-D.
func Float64Array(vals []float64, shape ...int) Reduce {
	if shape == nil {
		shape = []int{len(vals)}
	}
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return Array(DType("f8"), shape, b)
}

// Int64Array pickles a 1-D int64 array.
func Int64Array(vals ...int64) Reduce {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], uint64(v))
	}
	return Array(DType("i8"), []int{len(vals)}, b)
}

// ObjectArray pickles a 1-D object array of strings.
func ObjectArray(vals ...string) Reduce {
	items := make(List, len(vals))
	for i, v := range vals {
		items[i] = v
	}
	return Array(DType("O8"), []int{len(vals)}, items)
}

// Int64Scalar pickles a numpy.int64 scalar.
func Int64Scalar(v int64) Reduce {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return Reduce{Callable: scalar, Args: Tuple{DType("i8"), b}}
}
