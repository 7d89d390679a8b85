// Package sklearn reconstructs fitted scikit-learn classifiers from pickles
// and reproduces their predict and predict_proba behavior.
package sklearn

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Estimator is any object loaded from a model pickle.
type Estimator interface {
	// TypeName is the fully qualified Python class name.
	TypeName() string
	// Kind is the bare class name used to select a converter.
	Kind() string
	// Classes returns the fitted class labels, or nil when the object has none.
	Classes() *Labels
}

// Predictor is an estimator with a predict method.
type Predictor interface {
	Estimator
	NumFeatures() int
	Predict(x []float32) (Label, error)
}

// ProbaPredictor is a predictor that also exposes predict_proba.
type ProbaPredictor interface {
	Predictor
	PredictProba(x []float32) ([]float64, error)
}

// Labels holds class labels, either integers or strings.
type Labels struct {
	Ints    []int64
	Strings []string
}

// Len returns the number of classes.
func (l *Labels) Len() int {
	if l.Strings != nil {
		return len(l.Strings)
	}
	return len(l.Ints)
}

// IsString reports whether the labels are strings.
func (l *Labels) IsString() bool { return l.Strings != nil }

// At returns the i-th label.
func (l *Labels) At(i int) Label {
	if l.IsString() {
		return Label{Str: l.Strings[i], IsString: true}
	}
	return Label{Int: l.Ints[i]}
}

// String renders the labels like numpy prints an array.
func (l *Labels) String() string {
	parts := make([]string, l.Len())
	for i := range parts {
		if l.IsString() {
			parts[i] = "'" + l.Strings[i] + "'"
		} else {
			parts[i] = strconv.FormatInt(l.Ints[i], 10)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Label is a single predicted class.
type Label struct {
	Int      int64
	Str      string
	IsString bool
}

func (l Label) String() string {
	if l.IsString {
		return l.Str
	}
	return strconv.FormatInt(l.Int, 10)
}

// Opaque is an object the package cannot reproduce. It loads so its type can
// be reported; conversion rejects it.
type Opaque struct {
	Name    string
	Reason  string
	classes *Labels
}

func (o *Opaque) TypeName() string { return o.Name }

func (o *Opaque) Kind() string {
	if i := strings.LastIndexByte(o.Name, '.'); i >= 0 {
		return o.Name[i+1:]
	}
	return o.Name
}

func (o *Opaque) Classes() *Labels { return o.classes }

func checkInput(x []float32, n int) error {
	if n > 0 && len(x) != n {
		return fmt.Errorf("expected %d features, got %d", n, len(x))
	}
	return nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softmax(z []float64) []float64 {
	top := z[argmax(z)]
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
