package converter_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/skonnx/internal/onnx"
	pt "github.com/zerfoo/skonnx/internal/pyobj/pickletest"
	"github.com/zerfoo/skonnx/pkg/checker"
	"github.com/zerfoo/skonnx/pkg/converter"
	"github.com/zerfoo/skonnx/pkg/onnxeval"
	"github.com/zerfoo/skonnx/pkg/sklearn"
)

func load(t *testing.T, v interface{}) sklearn.Estimator {
	t.Helper()
	est, err := sklearn.Decode(bytes.NewReader(pt.Dumps(v)))
	require.NoError(t, err)
	return est
}

func splitTree() pt.Reduce {
	return pt.Tree(6, []pt.TreeNode{
		pt.Split(2, 0.5, 1, 2),
		pt.Split(0, 0.25, 3, 4),
		pt.Leaf(3),
		pt.Leaf(5),
		pt.Leaf(2),
	}, [][]float64{{4, 6}, {3, 3}, {1, 5}, {3, 2}, {0, 1}})
}

var samples = [][]float32{
	{1.0, 0.5, 0.3, 0.7, 0.2, 0.8},
	{0.1, 0.5, 0.3, 0.7, 0.2, 0.8},
	{1.0, 0.5, 0.9, 0.7, 0.2, 0.8},
	{-2, 3, 0.5, 0, 1, -1},
}

func estimators(t *testing.T) map[string]sklearn.Estimator {
	coef3 := [][]float64{
		{0.5, -1, 0.25, 0, 0, 1},
		{-0.5, 1, 0, 0.75, 0, 0},
		{0, 0, -0.25, 0, 2, -1},
	}
	return map[string]sklearn.Estimator{
		"decision tree": load(t, pt.DecisionTree(pt.Int64Array(0, 1), 6, splitTree())),
		"random forest": load(t, pt.RandomForest(pt.Int64Array(0, 1), 6, splitTree(),
			pt.Tree(6, []pt.TreeNode{pt.Split(4, 0.5, 1, 2), pt.Leaf(4), pt.Leaf(1)}, [][]float64{{2, 3}, {1, 3}, {1, 0}}))),
		"string forest": load(t, pt.RandomForest(pt.ObjectArray("no", "yes"), 6, splitTree())),
		"logistic ovr binary": load(t, pt.LogisticRegression(pt.Int64Array(0, 1),
			[][]float64{{1, -0.5, 0.25, 0, 0.5, -1}}, []float64{-0.25}, "auto", "lbfgs")),
		"logistic multinomial binary": load(t, pt.LogisticRegression(pt.Int64Array(0, 1),
			[][]float64{{1, -0.5, 0.25, 0, 0.5, -1}}, []float64{-0.25}, "multinomial", "lbfgs")),
		"logistic multinomial": load(t, pt.LogisticRegression(pt.Int64Array(2, 4, 8), coef3, []float64{0.1, -0.1, 0}, "multinomial", "lbfgs")),
		"logistic ovr": load(t, pt.LogisticRegression(pt.Int64Array(2, 4, 8), coef3, []float64{0.1, -0.1, 0}, "auto", "liblinear")),
	}
}

func probabilities(t *testing.T, out map[string]any, row int, classes *sklearn.Labels) []float64 {
	t.Helper()
	switch p := out[converter.ProbaOutput].(type) {
	case *onnxeval.MapSeq:
		got := make([]float64, classes.Len())
		for i := range got {
			v, ok := p.Get(row, classes.At(i).String())
			require.True(t, ok)
			got[i] = float64(v)
		}
		return got
	case *onnxeval.Tensor:
		got := make([]float64, classes.Len())
		for i, v := range p.Row(row) {
			got[i] = float64(v)
		}
		return got
	}
	t.Fatalf("unexpected probability output %T", out[converter.ProbaOutput])
	return nil
}

func TestConvertedGraphMatchesEstimator(t *testing.T) {
	for _, zipmap := range []bool{true, false} {
		for name, est := range estimators(t) {
			opts := converter.DefaultOptions()
			opts.ZipMap = zipmap
			model, err := converter.Convert(est, opts)
			require.NoError(t, err, name)
			require.NoError(t, checker.Check(model), name)

			sess, err := onnxeval.New(model)
			require.NoError(t, err, name)
			out, err := sess.Run(map[string]*onnxeval.Tensor{"input": onnxeval.FloatMatrix(samples...)})
			require.NoError(t, err, name)

			labels := out[converter.LabelOutput].(*onnxeval.Tensor)
			m := est.(sklearn.ProbaPredictor)
			for r, x := range samples {
				want, err := m.Predict(x)
				require.NoError(t, err)
				got, err := labels.Label(r)
				require.NoError(t, err)
				assert.Equal(t, want.String(), got, "%s row %d", name, r)

				wantP, err := m.PredictProba(x)
				require.NoError(t, err)
				assert.InDeltaSlice(t, wantP, probabilities(t, out, r, est.Classes()), 1e-5, "%s row %d", name, r)
			}
		}
	}
}

func TestConvertLinearSVC(t *testing.T) {
	tests := []struct {
		name      string
		classes   pt.Reduce
		coef      [][]float64
		intercept []float64
	}{
		{"binary", pt.Int64Array(0, 1), [][]float64{{0, 0, 0, 0, 0, 1}}, []float64{-1}},
		{"multiclass", pt.Int64Array(1, 2, 3), [][]float64{
			{1, 0, 0, 0, 0, 0},
			{0, 1, 0, 0, 0, 0},
			{0, 0, 0, 0, 0, 1},
		}, []float64{0, 0, 0}},
	}
	for _, tt := range tests {
		est := load(t, pt.LinearSVC(tt.classes, tt.coef, tt.intercept))
		model, err := converter.Convert(est, converter.DefaultOptions())
		require.NoError(t, err, tt.name)
		require.NoError(t, checker.Check(model), tt.name)

		outputs := model.Graph.Output
		require.Len(t, outputs, 2)
		assert.Equal(t, converter.ScoresOutput, outputs[1].Name)

		sess, err := onnxeval.New(model)
		require.NoError(t, err)
		out, err := sess.Run(map[string]*onnxeval.Tensor{"input": onnxeval.FloatMatrix(samples...)})
		require.NoError(t, err)
		labels := out[converter.LabelOutput].(*onnxeval.Tensor)
		m := est.(sklearn.Predictor)
		for r, x := range samples {
			want, err := m.Predict(x)
			require.NoError(t, err)
			got, err := labels.Label(r)
			require.NoError(t, err)
			assert.Equal(t, want.String(), got)
		}
	}
}

func TestConvertModelLayout(t *testing.T) {
	est := load(t, pt.RandomForest(pt.Int64Array(0, 1), 6, splitTree(), splitTree()))
	model, err := converter.Convert(est, converter.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, int64(7), model.IrVersion)
	assert.Equal(t, int64(12), model.OpsetVersion(""))
	assert.Equal(t, int64(2), model.OpsetVersion(converter.MLDomain))
	assert.Equal(t, "skonnx", model.ProducerName)

	g := model.Graph
	require.Len(t, g.Input, 1)
	assert.Equal(t, "input", g.Input[0].Name)
	assert.Equal(t, []int64{-1, 6}, g.Input[0].Type.Shape())
	assert.Equal(t, int32(onnx.TensorProto_FLOAT), g.Input[0].Type.TensorType.ElemType)

	require.Len(t, g.Output, 2)
	assert.Equal(t, converter.LabelOutput, g.Output[0].Name)
	assert.Equal(t, "tensor(INT64)", g.Output[0].Type.String())
	assert.Equal(t, converter.ProbaOutput, g.Output[1].Name)
	assert.Equal(t, "seq(map(INT64,tensor(FLOAT)))", g.Output[1].Type.String())

	require.Len(t, g.Node, 2)
	assert.Equal(t, "TreeEnsembleClassifier", g.Node[0].OpType)
	assert.Equal(t, "ZipMap", g.Node[1].OpType)

	weights, ok := g.Node[0].Attr("class_weights")
	require.True(t, ok)
	var sum float64
	for _, w := range weights.Floats {
		sum += float64(w)
	}
	// every leaf distributes 1/n_trees across the classes
	assert.InDelta(t, 3.0, sum, 1e-6)

	first, err := onnx.Marshal(model)
	require.NoError(t, err)
	again, err := converter.Convert(est, converter.DefaultOptions())
	require.NoError(t, err)
	second, err := onnx.Marshal(again)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConvertStringLabels(t *testing.T) {
	est := load(t, pt.DecisionTree(pt.ObjectArray("low", "high"), 6, splitTree()))
	model, err := converter.Convert(est, converter.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "tensor(STRING)", model.Graph.Output[0].Type.String())
	assert.Equal(t, "seq(map(STRING,tensor(FLOAT)))", model.Graph.Output[1].Type.String())
	labels, ok := model.Graph.Node[0].Attr("classlabels_strings")
	require.True(t, ok)
	assert.Equal(t, []string{"low", "high"}, labels.StringsValue())
}

func TestConvertErrors(t *testing.T) {
	opaque := load(t, pt.Object{
		Class: pt.Global{Module: "sklearn.svm._classes", Name: "SVC"},
		State: pt.Dict{{Key: "classes_", Value: pt.Int64Array(0, 1)}},
	})
	_, err := converter.Convert(opaque, converter.DefaultOptions())
	assert.True(t, errors.Is(err, converter.ErrUnsupportedModel))

	tree := load(t, pt.DecisionTree(pt.Int64Array(0, 1), 6, splitTree()))
	opts := converter.DefaultOptions()
	opts.NumFeatures = 4
	_, err = converter.Convert(tree, opts)
	assert.Error(t, err)

	opts = converter.DefaultOptions()
	opts.TargetOpset = 8
	_, err = converter.Convert(tree, opts)
	assert.Error(t, err)

	opts = converter.DefaultOptions()
	opts.InputName = ""
	_, err = converter.Convert(tree, opts)
	assert.Error(t, err)
}

func TestVersions(t *testing.T) {
	tests := []struct {
		opset, ir, ml int64
	}{
		{9, 4, 1},
		{11, 6, 2},
		{12, 7, 2},
		{15, 8, 2},
	}
	for _, tt := range tests {
		ir, ml, err := converter.Versions(tt.opset)
		require.NoError(t, err)
		assert.Equal(t, tt.ir, ir, "opset %d", tt.opset)
		assert.Equal(t, tt.ml, ml, "opset %d", tt.opset)
	}
	_, _, err := converter.Versions(16)
	assert.Error(t, err)
}

func TestKinds(t *testing.T) {
	kinds := converter.Kinds()
	assert.Contains(t, kinds, "RandomForestClassifier")
	assert.Contains(t, kinds, "LogisticRegression")
	assert.NotContains(t, kinds, "SVC")
}
