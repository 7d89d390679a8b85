package sklearn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zerfoo/skonnx/internal/pyobj"
)

type decodeFunc func(obj *pyobj.Object) (Estimator, error)

// decoders maps a scikit-learn class name to its decoder. Modules are not part
// of the key because they moved between releases (sklearn.ensemble.forest
// became sklearn.ensemble._forest).
var decoders = make(map[string]decodeFunc)

func register(name string, fn decodeFunc) {
	decoders[name] = fn
}

var errMultiOutput = errors.New("multi-output estimators are not supported")

// Load reads a pickled estimator from path.
func Load(path string) (Estimator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a pickled estimator. Objects outside scikit-learn, and
// scikit-learn classes without a decoder, are returned as *Opaque.
func Decode(r io.Reader) (Estimator, error) {
	v, err := pyobj.Load(r)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*pyobj.Object)
	if !ok {
		return &Opaque{Name: pyobj.TypeName(v), Reason: "pickle does not hold an estimator object"}, nil
	}
	return FromObject(obj)
}

// FromObject builds an estimator from an unpickled object.
func FromObject(obj *pyobj.Object) (Estimator, error) {
	name := obj.QualName()
	dec, ok := decoders[obj.Class.Name]
	if !ok || !strings.HasPrefix(obj.Class.Module, "sklearn.") {
		op := &Opaque{Name: name, Reason: "no decoder for " + name}
		if classes, err := decodeClasses(obj); err == nil {
			op.classes = classes
		}
		return op, nil
	}
	est, err := dec(obj)
	if errors.Is(err, errMultiOutput) {
		return &Opaque{Name: name, Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return est, nil
}

func kindOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func decodeClasses(obj *pyobj.Object) (*Labels, error) {
	if v, ok := obj.Attr("n_outputs_"); ok {
		if n, err := pyobj.Int(v); err == nil && n != 1 {
			return nil, errMultiOutput
		}
	}
	v, err := obj.MustAttr("classes_")
	if err != nil {
		return nil, err
	}
	arr, err := pyobj.Array(v)
	if err != nil {
		return nil, fmt.Errorf("classes_: %w", err)
	}
	if len(arr.Shape) != 1 {
		return nil, fmt.Errorf("classes_ has shape %v", arr.Shape)
	}
	switch arr.DType.Kind {
	case 'O':
		if s, err := arr.Strings(); err == nil {
			return &Labels{Strings: s}, nil
		}
	case 'U', 'S':
		s, err := arr.Strings()
		if err != nil {
			return nil, fmt.Errorf("classes_: %w", err)
		}
		return &Labels{Strings: s}, nil
	}
	ints, err := arr.Int64s()
	if err != nil {
		return nil, fmt.Errorf("classes_: labels must be integers or strings: %w", err)
	}
	return &Labels{Ints: ints}, nil
}
