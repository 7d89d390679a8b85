package converter

import (
	"fmt"

	"github.com/zerfoo/skonnx/internal/onnx"
	"github.com/zerfoo/skonnx/pkg/sklearn"
)

// linearRows returns coefficient and intercept rows for LinearClassifier.
// A binary model with a single decision row z is expanded to two rows whose
// second column carries z; the first is -z when mirror is set and 0 otherwise.
func linearRows(l *sklearn.Linear, mirror bool) (coef, intercepts []float32) {
	if l.Binary() {
		w, b := l.Coef[0], l.Intercept[0]
		neg := make([]float32, len(w))
		negB := float32(0)
		if mirror {
			for j, v := range w {
				neg[j] = float32(-v)
			}
			negB = float32(-b)
		}
		coef = append(coef, neg...)
		for _, v := range w {
			coef = append(coef, float32(v))
		}
		return coef, []float32{negB, float32(b)}
	}
	for k, row := range l.Coef {
		for _, v := range row {
			coef = append(coef, float32(v))
		}
		intercepts = append(intercepts, float32(l.Intercept[k]))
	}
	return coef, intercepts
}

func convertLogistic(ctx *Context, est sklearn.Estimator) (Outputs, error) {
	m, ok := est.(*sklearn.LogisticRegression)
	if !ok {
		return Outputs{}, fmt.Errorf("%w: %s is not a logistic regression", ErrUnsupportedModel, est.TypeName())
	}
	classes := m.Classes()
	proba := ctx.Unique("probabilities")

	// softmax([0, z]) is sigmoid(z) and softmax([-z, z]) is sigmoid(2z)
	if m.Binary() {
		coef, intercepts := linearRows(&m.Linear, m.MultiClass == sklearn.Multinomial)
		ctx.AddNode("LinearClassifier", MLDomain, []string{ctx.Input}, []string{LabelOutput, proba},
			classLabels("classlabels_ints", classes),
			onnx.AttrFloats("coefficients", coef),
			onnx.AttrFloats("intercepts", intercepts),
			onnx.AttrString("post_transform", "SOFTMAX"),
		)
		return Outputs{Label: LabelOutput, Proba: proba}, nil
	}

	coef, intercepts := linearRows(&m.Linear, false)
	if m.MultiClass == sklearn.Multinomial {
		ctx.AddNode("LinearClassifier", MLDomain, []string{ctx.Input}, []string{LabelOutput, proba},
			classLabels("classlabels_ints", classes),
			onnx.AttrFloats("coefficients", coef),
			onnx.AttrFloats("intercepts", intercepts),
			onnx.AttrInt("multi_class", 1),
			onnx.AttrString("post_transform", "SOFTMAX"),
		)
		return Outputs{Label: LabelOutput, Proba: proba}, nil
	}

	raw := ctx.Unique("raw_scores")
	ctx.AddNode("LinearClassifier", MLDomain, []string{ctx.Input}, []string{LabelOutput, raw},
		classLabels("classlabels_ints", classes),
		onnx.AttrFloats("coefficients", coef),
		onnx.AttrFloats("intercepts", intercepts),
		onnx.AttrString("post_transform", "LOGISTIC"),
	)
	ctx.AddNode("Normalizer", MLDomain, []string{raw}, []string{proba},
		onnx.AttrString("norm", "L1"),
	)
	return Outputs{Label: LabelOutput, Proba: proba}, nil
}

func convertLinearSVC(ctx *Context, est sklearn.Estimator) (Outputs, error) {
	m, ok := est.(*sklearn.LinearSVC)
	if !ok {
		return Outputs{}, fmt.Errorf("%w: %s is not a linear SVC", ErrUnsupportedModel, est.TypeName())
	}
	coef, intercepts := linearRows(&m.Linear, true)
	ctx.AddNode("LinearClassifier", MLDomain, []string{ctx.Input}, []string{LabelOutput, ScoresOutput},
		classLabels("classlabels_ints", m.Classes()),
		onnx.AttrFloats("coefficients", coef),
		onnx.AttrFloats("intercepts", intercepts),
		onnx.AttrString("post_transform", "NONE"),
	)
	return Outputs{Label: LabelOutput, Scores: ScoresOutput}, nil
}

func init() {
	Register("LogisticRegression", convertLogistic)
	Register("LinearSVC", convertLinearSVC)
}
