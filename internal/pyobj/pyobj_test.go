package pyobj

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pt "github.com/zerfoo/skonnx/internal/pyobj/pickletest"
)

func load(t *testing.T, v interface{}) interface{} {
	t.Helper()
	out, err := Load(bytes.NewReader(pt.Dumps(v)))
	require.NoError(t, err)
	return out
}

func TestLoadFloatArray(t *testing.T) {
	a, err := Array(load(t, pt.Float64Array([]float64{1, 2.5, -3, 4, 5, 6}, 2, 3)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, a.Shape)
	assert.Equal(t, byte('f'), a.DType.Kind)

	vals, err := a.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3, 4, 5, 6}, vals)

	_, err = a.Int64s()
	assert.Error(t, err, "2.5 is not integral")
}

func TestLoadFortranArray(t *testing.T) {
	// [[1 2 3] [4 5 6]] stored column-major
	raw := pt.Float64Array([]float64{1, 4, 2, 5, 3, 6}, 2, 3)
	st := raw.State.(pt.Tuple)
	st[3] = true

	a, err := Array(load(t, raw))
	require.NoError(t, err)
	vals, err := a.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, vals)
}

func TestLoadObjectArray(t *testing.T) {
	a, err := Array(load(t, pt.ObjectArray("responder", "non-responder")))
	require.NoError(t, err)
	s, err := a.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"responder", "non-responder"}, s)
}

func TestLoadStructuredArray(t *testing.T) {
	tree := pt.Tree(6, []pt.TreeNode{
		pt.Split(2, 0.5, 1, 2),
		pt.Leaf(3),
		pt.Leaf(4),
	}, [][]float64{{3, 4}, {3, 0}, {0, 4}})

	v := load(t, tree)
	obj, err := AsObject(v)
	require.NoError(t, err)
	assert.Equal(t, "sklearn.tree._tree.Tree", obj.QualName())
	require.Len(t, obj.Args, 3)

	nodes, err := obj.MustAttr("nodes")
	require.NoError(t, err)
	a, err := Array(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"left_child", "right_child", "feature", "threshold", "impurity",
		"n_node_samples", "weighted_n_node_samples", "missing_go_to_left"}, a.DType.Names)

	left, err := a.FieldInt64s("left_child")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -1, -1}, left)

	thr, err := a.FieldFloat64s("threshold")
	require.NoError(t, err)
	assert.Equal(t, 0.5, thr[0])

	assert.True(t, a.HasField("missing_go_to_left"))
	_, err = a.FieldInt64s("nope")
	assert.Error(t, err)
}

func TestLoadScalarAndObject(t *testing.T) {
	v := load(t, pt.Object{
		Class: pt.Global{Module: "sklearn.dummy", Name: "DummyClassifier"},
		State: pt.Dict{
			{Key: "n_classes_", Value: pt.Int64Scalar(2)},
			{Key: "strategy", Value: "prior"},
		},
	})
	obj, err := AsObject(v)
	require.NoError(t, err)
	assert.Equal(t, "sklearn.dummy.DummyClassifier", obj.QualName())

	n, err := obj.MustAttr("n_classes_")
	require.NoError(t, err)
	k, err := Int(n)
	require.NoError(t, err)
	assert.Equal(t, int64(2), k)

	_, err = obj.MustAttr("classes_")
	assert.Error(t, err)
}

func TestLoadLatin1Buffer(t *testing.T) {
	// protocol 2 pickles carry raw bytes through _codecs.encode(str, "latin1")
	raw := pt.Int64Array(1, 255)
	st := raw.State.(pt.Tuple)
	b := st[4].([]byte)
	st[4] = pt.Reduce{
		Callable: pt.Global{Module: "_codecs", Name: "encode"},
		Args:     pt.Tuple{latin1(b), "latin1"},
	}

	a, err := Array(load(t, raw))
	require.NoError(t, err)
	ints, err := a.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 255}, ints)
}

func TestLoadProtocols(t *testing.T) {
	tree := pt.Tree(6, []pt.TreeNode{
		pt.Split(5, 0.5, 1, 2),
		pt.Leaf(2),
		pt.Leaf(8),
	}, [][]float64{{5, 5}, {2, 0}, {1, 7}})
	model := pt.RandomForest(pt.ObjectArray("responder", "non-responder"), 6, tree, tree)

	for _, protocol := range []int{3, 4, 5} {
		t.Run(fmt.Sprintf("protocol %d", protocol), func(t *testing.T) {
			data := pt.DumpsProtocol(model, protocol)
			require.Equal(t, byte(protocol), data[1])

			v, err := Load(bytes.NewReader(data))
			require.NoError(t, err)
			obj, err := AsObject(v)
			require.NoError(t, err)
			assert.Equal(t, "sklearn.ensemble._forest.RandomForestClassifier", obj.QualName())

			classes, err := obj.MustAttr("classes_")
			require.NoError(t, err)
			ca, err := Array(classes)
			require.NoError(t, err)
			names, err := ca.Strings()
			require.NoError(t, err)
			assert.Equal(t, []string{"responder", "non-responder"}, names)

			estimators, err := obj.MustAttr("estimators_")
			require.NoError(t, err)
			items, err := Slice(estimators)
			require.NoError(t, err)
			require.Len(t, items, 2)
			est, err := AsObject(items[1])
			require.NoError(t, err)
			treeAttr, err := est.MustAttr("tree_")
			require.NoError(t, err)
			treeObj, err := AsObject(treeAttr)
			require.NoError(t, err)
			nodes, err := treeObj.MustAttr("nodes")
			require.NoError(t, err)
			na, err := Array(nodes)
			require.NoError(t, err)
			feature, err := na.FieldInt64s("feature")
			require.NoError(t, err)
			assert.Equal(t, []int64{5, -2, -2}, feature)

			values, err := treeObj.MustAttr("values")
			require.NoError(t, err)
			va, err := Array(values)
			require.NoError(t, err)
			vals, err := va.Float64s()
			require.NoError(t, err)
			assert.Equal(t, []float64{5, 5, 2, 0, 1, 7}, vals)
		})
	}
}

func TestBytesAcceptsByteArray(t *testing.T) {
	b, err := Bytes(types.NewByteArrayFromSlice([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	_, err = Bytes(42)
	assert.Error(t, err)
}

func TestLoadCorrupt(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("not a pickle")))
	assert.Error(t, err)

	data := pt.Dumps(pt.Float64Array([]float64{1, 2}))
	_, err = Load(bytes.NewReader(data[:len(data)/2]))
	assert.Error(t, err)
}

func TestParseDType(t *testing.T) {
	dt, err := ParseDType(">i4")
	require.NoError(t, err)
	assert.True(t, dt.BigEndian)
	assert.Equal(t, 4, dt.Size)

	dt, err = ParseDType("U3")
	require.NoError(t, err)
	assert.Equal(t, 12, dt.Size)

	_, err = ParseDType("c16")
	assert.Error(t, err)
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{pt.List{1, 2}, "list"},
		{pt.Tuple{1}, "tuple"},
		{pt.Dict{{Key: "a", Value: 1}}, "dict"},
		{"text", "str"},
		{2.5, "float"},
		{int64(7), "int"},
		{nil, "NoneType"},
		{pt.ByteArray{1}, "bytearray"},
		{pt.Float64Array([]float64{1}), "numpy.ndarray"},
		{pt.Object{Class: pt.Global{Module: "sklearn.svm._classes", Name: "SVC"}, State: pt.Dict{}}, "sklearn.svm._classes.SVC"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeName(load(t, tt.value)))
		})
	}
}
