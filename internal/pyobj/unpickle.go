// Package pyobj decodes Python pickles of scikit-learn estimators into plain Go
// values. The pickle opcodes are handled by gopickle; this package supplies the
// numpy and estimator classes those pickles reference.
package pyobj

import (
	"fmt"
	"io"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
)

// Load unpickles a single object from r.
func Load(r io.Reader) (interface{}, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findClass
	v, err := u.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to unpickle: %w", err)
	}
	return v, nil
}

func findClass(module, name string) (interface{}, error) {
	switch module {
	case "numpy":
		switch name {
		case "ndarray":
			return ndarrayClass{}, nil
		case "dtype":
			return dtypeClass{}, nil
		}
	case "numpy.core.multiarray", "numpy._core.multiarray":
		switch name {
		case "_reconstruct":
			return reconstructFunc{}, nil
		case "scalar":
			return scalarFunc{}, nil
		}
	case "numpy.core.numeric", "numpy._core.numeric":
		if name == "_frombuffer" {
			return frombufferFunc{}, nil
		}
	case "_codecs":
		if name == "encode" {
			return encodeFunc{}, nil
		}
	case "builtins", "__builtin__":
		return types.NewGenericClass(module, name), nil
	}
	return &Class{Module: module, Name: name}, nil
}

// encodeFunc is _codecs.encode, used by protocol 2 pickles to carry bytes as
// latin-1 text.
type encodeFunc struct{}

func (encodeFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("_codecs.encode: missing argument")
	}
	return Bytes(args[0])
}
