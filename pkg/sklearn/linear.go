package sklearn

import (
	"fmt"

	"github.com/zerfoo/skonnx/internal/pyobj"
)

// Multiclass strategies of LogisticRegression.
const (
	Multinomial = "multinomial"
	OneVsRest   = "ovr"
)

// Linear holds the fitted parameters shared by linear classifiers. Coef has
// one row per class, or a single row for binary problems.
type Linear struct {
	Coef      [][]float64
	Intercept []float64
}

// Binary reports whether the model has a single decision row.
func (l *Linear) Binary() bool { return len(l.Coef) == 1 }

// Decision returns coef . x + intercept for every row.
func (l *Linear) Decision(x []float32) []float64 {
	out := make([]float64, len(l.Coef))
	for k, row := range l.Coef {
		z := l.Intercept[k]
		for j, w := range row {
			z += w * float64(x[j])
		}
		out[k] = z
	}
	return out
}

func (l *Linear) predictIndex(z []float64) int {
	if len(z) == 1 {
		if z[0] > 0 {
			return 1
		}
		return 0
	}
	return argmax(z)
}

// LogisticRegression reproduces predict_proba for binary, multinomial and
// one-vs-rest fits.
type LogisticRegression struct {
	Linear
	name       string
	classes    *Labels
	MultiClass string
}

func (m *LogisticRegression) TypeName() string { return m.name }
func (m *LogisticRegression) Kind() string     { return kindOf(m.name) }
func (m *LogisticRegression) Classes() *Labels { return m.classes }
func (m *LogisticRegression) NumFeatures() int { return len(m.Coef[0]) }

func (m *LogisticRegression) PredictProba(x []float32) ([]float64, error) {
	if err := checkInput(x, m.NumFeatures()); err != nil {
		return nil, err
	}
	z := m.Decision(x)
	if m.Binary() {
		// multinomial binary fits apply softmax to [-z, z]
		if m.MultiClass == Multinomial {
			z[0] *= 2
		}
		p := sigmoid(z[0])
		return []float64{1 - p, p}, nil
	}
	if m.MultiClass == Multinomial {
		return softmax(z), nil
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = sigmoid(v)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

func (m *LogisticRegression) Predict(x []float32) (Label, error) {
	if err := checkInput(x, m.NumFeatures()); err != nil {
		return Label{}, err
	}
	return m.classes.At(m.predictIndex(m.Decision(x))), nil
}

// LinearSVC has no predict_proba.
type LinearSVC struct {
	Linear
	name    string
	classes *Labels
}

func (m *LinearSVC) TypeName() string { return m.name }
func (m *LinearSVC) Kind() string     { return kindOf(m.name) }
func (m *LinearSVC) Classes() *Labels { return m.classes }
func (m *LinearSVC) NumFeatures() int { return len(m.Coef[0]) }

func (m *LinearSVC) Predict(x []float32) (Label, error) {
	if err := checkInput(x, m.NumFeatures()); err != nil {
		return Label{}, err
	}
	return m.classes.At(m.predictIndex(m.Decision(x))), nil
}

func decodeLinear(obj *pyobj.Object, classes *Labels) (Linear, error) {
	cv, err := obj.MustAttr("coef_")
	if err != nil {
		return Linear{}, err
	}
	coef, err := pyobj.Array(cv)
	if err != nil {
		return Linear{}, fmt.Errorf("coef_: %w", err)
	}
	iv, err := obj.MustAttr("intercept_")
	if err != nil {
		return Linear{}, err
	}
	var intercept []float64
	if arr, ok := iv.(*pyobj.NDArray); ok {
		if intercept, err = arr.Float64s(); err != nil {
			return Linear{}, fmt.Errorf("intercept_: %w", err)
		}
	} else {
		// fit_intercept=False stores a plain 0.0
		f, err := pyobj.Float(iv)
		if err != nil {
			return Linear{}, fmt.Errorf("intercept_: %w", err)
		}
		intercept = []float64{f}
	}

	if len(coef.Shape) != 2 {
		return Linear{}, fmt.Errorf("coef_ has shape %v", coef.Shape)
	}
	rows, cols := coef.Shape[0], coef.Shape[1]
	want := classes.Len()
	if want == 2 {
		want = 1
	}
	if rows != want {
		return Linear{}, fmt.Errorf("coef_ has %d rows for %d classes", rows, classes.Len())
	}
	if len(intercept) == 1 && rows > 1 {
		for len(intercept) < rows {
			intercept = append(intercept, intercept[0])
		}
	}
	if len(intercept) != rows {
		return Linear{}, fmt.Errorf("intercept_ has %d values for %d rows", len(intercept), rows)
	}
	flat, err := coef.Float64s()
	if err != nil {
		return Linear{}, fmt.Errorf("coef_: %w", err)
	}
	l := Linear{Intercept: intercept}
	for r := 0; r < rows; r++ {
		l.Coef = append(l.Coef, flat[r*cols:(r+1)*cols])
	}
	return l, nil
}

// multiClassOf resolves the strategy the fitted model used. "auto" (and
// "deprecated" since scikit-learn 1.5) means ovr for binary problems and for
// liblinear, multinomial otherwise.
func multiClassOf(obj *pyobj.Object, nClasses int) string {
	mc := "auto"
	if v, ok := obj.Attr("multi_class"); ok {
		if s, err := pyobj.String(v); err == nil {
			mc = s
		}
	}
	switch mc {
	case Multinomial, OneVsRest:
		return mc
	}
	if nClasses <= 2 {
		return OneVsRest
	}
	if v, ok := obj.Attr("solver"); ok {
		if s, _ := pyobj.String(v); s == "liblinear" {
			return OneVsRest
		}
	}
	return Multinomial
}

func decodeLogistic(obj *pyobj.Object) (Estimator, error) {
	classes, err := decodeClasses(obj)
	if err != nil {
		return nil, err
	}
	lin, err := decodeLinear(obj, classes)
	if err != nil {
		return nil, err
	}
	return &LogisticRegression{Linear: lin, name: obj.QualName(), classes: classes, MultiClass: multiClassOf(obj, classes.Len())}, nil
}

func decodeLinearSVC(obj *pyobj.Object) (Estimator, error) {
	classes, err := decodeClasses(obj)
	if err != nil {
		return nil, err
	}
	lin, err := decodeLinear(obj, classes)
	if err != nil {
		return nil, err
	}
	return &LinearSVC{Linear: lin, name: obj.QualName(), classes: classes}, nil
}

func init() {
	register("LogisticRegression", decodeLogistic)
	register("LinearSVC", decodeLinearSVC)
}
