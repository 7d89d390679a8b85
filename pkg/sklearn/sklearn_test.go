package sklearn

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pt "github.com/zerfoo/skonnx/internal/pyobj/pickletest"
)

var sample = []float32{1.0, 0.5, 0.3, 0.7, 0.2, 0.8}

func decode(t *testing.T, v interface{}) Estimator {
	t.Helper()
	est, err := Decode(bytes.NewReader(pt.Dumps(v)))
	require.NoError(t, err)
	return est
}

func splitTree() pt.Reduce {
	return pt.Tree(6, []pt.TreeNode{
		pt.Split(2, 0.5, 1, 2),
		pt.Leaf(4),
		pt.Leaf(3),
	}, [][]float64{{3, 4}, {3, 1}, {0, 3}})
}

func TestDecisionTree(t *testing.T) {
	est := decode(t, pt.DecisionTree(pt.Int64Array(0, 1), 6, splitTree()))
	m, ok := est.(ProbaPredictor)
	require.True(t, ok)
	assert.Equal(t, "sklearn.tree._classes.DecisionTreeClassifier", m.TypeName())
	assert.Equal(t, "DecisionTreeClassifier", m.Kind())
	assert.Equal(t, "[0 1]", m.Classes().String())
	assert.Equal(t, 6, m.NumFeatures())

	p, err := m.PredictProba(sample)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, p, 1e-12)
	label, err := m.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, "0", label.String())

	right := []float32{1, 0.5, 0.9, 0.7, 0.2, 0.8}
	label, err = m.Predict(right)
	require.NoError(t, err)
	assert.Equal(t, int64(1), label.Int)

	nan := []float32{1, 0.5, float32(math.NaN()), 0.7, 0.2, 0.8}
	label, err = m.Predict(nan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), label.Int, "NaN goes right unless missing_go_to_left")

	_, err = m.Predict([]float32{1, 2})
	assert.Error(t, err)
}

func TestRandomForest(t *testing.T) {
	leaf := pt.Tree(6, []pt.TreeNode{pt.Leaf(4)}, [][]float64{{0, 4}})
	est := decode(t, pt.RandomForest(pt.Int64Array(0, 1), 6, splitTree(), leaf))

	m, ok := est.(*RandomForestClassifier)
	require.True(t, ok)
	assert.Len(t, m.Trees, 2)

	p, err := m.PredictProba(sample)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.375, 0.625}, p, 1e-12)

	label, err := m.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, "1", label.String())
}

func TestForestStringClasses(t *testing.T) {
	est := decode(t, pt.RandomForest(pt.ObjectArray("negative", "positive"), 6, splitTree()))
	m := est.(ProbaPredictor)
	assert.Equal(t, "['negative' 'positive']", m.Classes().String())

	label, err := m.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, "negative", label.String())
}

func TestLogisticRegressionBinary(t *testing.T) {
	coef := [][]float64{{1, 0, 0, 0, 0, 0}}

	ovr := decode(t, pt.LogisticRegression(pt.Int64Array(0, 1), coef, []float64{-0.5}, "auto", "lbfgs")).(*LogisticRegression)
	assert.Equal(t, OneVsRest, ovr.MultiClass)
	p, err := ovr.PredictProba(sample)
	require.NoError(t, err)
	want := 1 / (1 + math.Exp(-0.5))
	assert.InDeltaSlice(t, []float64{1 - want, want}, p, 1e-12)

	multi := decode(t, pt.LogisticRegression(pt.Int64Array(0, 1), coef, []float64{-0.5}, "multinomial", "lbfgs")).(*LogisticRegression)
	p, err = multi.PredictProba(sample)
	require.NoError(t, err)
	want = 1 / (1 + math.Exp(-1.0))
	assert.InDelta(t, want, p[1], 1e-12)

	label, err := multi.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, int64(1), label.Int)
}

func TestLogisticRegressionMulticlass(t *testing.T) {
	coef := [][]float64{
		{1, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 0},
		{0, 0, 1, 0, 0, 0},
	}
	classes := pt.Int64Array(3, 5, 7)

	multi := decode(t, pt.LogisticRegression(classes, coef, []float64{0, 0, 0}, "deprecated", "lbfgs")).(*LogisticRegression)
	assert.Equal(t, Multinomial, multi.MultiClass)
	p, err := multi.PredictProba(sample)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p[0]+p[1]+p[2], 1e-12)
	assert.Greater(t, p[0], p[1])
	label, err := multi.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, int64(3), label.Int)

	ovr := decode(t, pt.LogisticRegression(classes, coef, []float64{0, 0, 0}, "auto", "liblinear")).(*LogisticRegression)
	assert.Equal(t, OneVsRest, ovr.MultiClass)
	p, err = ovr.PredictProba(sample)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p[0]+p[1]+p[2], 1e-12)
}

func TestLinearSVCHasNoProba(t *testing.T) {
	est := decode(t, pt.LinearSVC(pt.ObjectArray("neg", "pos"), [][]float64{{0, 0, 0, 0, 0, 1}}, []float64{-1}))
	_, isProba := est.(ProbaPredictor)
	assert.False(t, isProba)

	m, ok := est.(Predictor)
	require.True(t, ok)
	label, err := m.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, "neg", label.String())
}

func TestUnsupportedLoadsAsOpaque(t *testing.T) {
	est := decode(t, pt.Object{
		Class: pt.Global{Module: "sklearn.neighbors._classification", Name: "KNeighborsClassifier"},
		State: pt.Dict{{Key: "classes_", Value: pt.Int64Array(0, 1)}},
	})
	op, ok := est.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, "KNeighborsClassifier", op.Kind())
	assert.Equal(t, "[0 1]", op.Classes().String())

	est = decode(t, pt.List{1, 2, 3})
	op, ok = est.(*Opaque)
	require.True(t, ok)
	assert.Equal(t, "list", op.TypeName())
	assert.Nil(t, op.Classes())

	est = decode(t, pt.Dict{{Key: "model", Value: "rf"}})
	assert.Equal(t, "dict", est.TypeName())
}

func TestFormatProba(t *testing.T) {
	tests := []struct {
		in   []float64
		want string
	}{
		{[]float64{0.75, 0.25}, "[0.75 0.25]"},
		{[]float64{0.125, 0.875}, "[0.125 0.875]"},
		{[]float64{0, 1}, "[0. 1.]"},
		{[]float64{1, 0.25}, "[1.   0.25]"},
		{[]float64{0.1, 0.2, 0.7}, "[0.1 0.2 0.7]"},
		{[]float64{1.0 / 3, 2.0 / 3}, "[0.33333333 0.66666667]"},
		{[]float64{0.99999, 0.00001}, "[9.9999e-01 1.0000e-05]"},
		{[]float64{}, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProba(tt.in))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.pkl"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	path := filepath.Join(t.TempDir(), "corrupt.pkl")
	require.NoError(t, os.WriteFile(path, []byte{0x80, 3, 'X', 0xff}, 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	// a tree whose values do not match its class count is corrupt, not opaque
	bad := pt.DecisionTree(pt.Int64Array(0, 1, 2), 6, splitTree())
	_, err = Decode(bytes.NewReader(pt.Dumps(bad)))
	assert.Error(t, err)
}
