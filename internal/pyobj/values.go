package pyobj

import (
	"fmt"
	"math/big"

	"github.com/nlpodyssey/gopickle/types"
)

// Int converts a Python int, bool or integral numpy scalar.
func Int(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case *big.Int:
		if !x.IsInt64() {
			return 0, fmt.Errorf("integer %s overflows int64", x)
		}
		return x.Int64(), nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("float %v is not integral", x)
		}
		return int64(x), nil
	}
	return 0, fmt.Errorf("expected int, got %T", v)
}

// Float converts a Python float or int.
func Float(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	i, err := Int(v)
	if err != nil {
		return 0, fmt.Errorf("expected float, got %T", v)
	}
	return float64(i), nil
}

// String converts a Python str.
func String(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected str, got %T", v)
	}
	return s, nil
}

// Bytes converts Python bytes or bytearray. A str is taken as latin-1, which is
// how protocol 2 pickles and numpy encode raw buffers as text. Protocol 5 writes
// in-band array buffers as bytearray.
func Bytes(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case *types.ByteArray:
		return []byte(*x), nil
	case string:
		out := make([]byte, 0, len(x))
		for _, r := range x {
			if r > 0xff {
				return nil, fmt.Errorf("character %U is outside latin-1", r)
			}
			out = append(out, byte(r))
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}

// Slice converts a Python tuple or list.
func Slice(v interface{}) ([]interface{}, error) {
	switch x := v.(type) {
	case *types.Tuple:
		out := make([]interface{}, x.Len())
		for i := range out {
			out[i] = x.Get(i)
		}
		return out, nil
	case *types.List:
		out := make([]interface{}, x.Len())
		for i := range out {
			out[i] = x.Get(i)
		}
		return out, nil
	case []interface{}:
		return x, nil
	}
	return nil, fmt.Errorf("expected tuple or list, got %T", v)
}

// Ints converts a tuple of ints, such as an array shape.
func Ints(v interface{}) ([]int, error) {
	items, err := Slice(v)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(items))
	for i, item := range items {
		n, err := Int(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = int(n)
	}
	return out, nil
}

// Array converts a reconstructed numpy array.
func Array(v interface{}) (*NDArray, error) {
	a, ok := v.(*NDArray)
	if !ok {
		return nil, fmt.Errorf("expected numpy.ndarray, got %T", v)
	}
	return a, nil
}

// AsObject converts an estimator-like object.
func AsObject(v interface{}) (*Object, error) {
	o, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return o, nil
}

// TypeName returns the Python class name of an unpickled value, as type(v)
// would print it.
func TypeName(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int, int32, int64, uint64, *big.Int:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case []byte:
		return "bytes"
	case *types.ByteArray:
		return "bytearray"
	case *types.List:
		return "list"
	case *types.Tuple:
		return "tuple"
	case *types.Dict:
		return "dict"
	case *types.OrderedDict:
		return "collections.OrderedDict"
	case *types.Set:
		return "set"
	case *types.FrozenSet:
		return "frozenset"
	case *NDArray:
		return "numpy.ndarray"
	case *DType:
		return "numpy.dtype"
	case *Object:
		return x.QualName()
	case *types.GenericObject:
		if x.Class.Module == "builtins" || x.Class.Module == "__builtin__" {
			return x.Class.Name
		}
		return x.Class.Module + "." + x.Class.Name
	}
	return "object"
}
