package zmfexport

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerfoo/zmf"

	"github.com/zerfoo/skonnx/internal/onnx"
)

func linearModel() *onnx.ModelProto {
	return &onnx.ModelProto{
		IrVersion:   7,
		OpsetImport: []*onnx.OperatorSetIdProto{{Version: 12}, {Domain: "ai.onnx.ml", Version: 2}},
		Graph: &onnx.GraphProto{
			Name:   "LogisticRegression",
			Input:  []*onnx.ValueInfoProto{{Name: "input", Type: onnx.TensorType(onnx.TensorProto_FLOAT, -1, 2)}},
			Output: []*onnx.ValueInfoProto{{Name: "probabilities", Type: onnx.SequenceOfMaps(onnx.TensorProto_INT64)}},
			Initializer: []*onnx.TensorProto{
				{Name: "scale", DataType: int32(onnx.TensorProto_FLOAT), Dims: []int64{2}, FloatData: []float32{0.5, 2}},
				{Name: "axes", DataType: int32(onnx.TensorProto_INT64), Dims: []int64{1}, Int64Data: []int64{1}},
			},
			Node: []*onnx.NodeProto{
				{
					Name: "linear", OpType: "LinearClassifier", Domain: "ai.onnx.ml",
					Input: []string{"input"}, Output: []string{"label", "scores"},
					Attribute: []*onnx.AttributeProto{
						onnx.AttrInts("classlabels_ints", []int64{0, 1}),
						onnx.AttrFloats("coefficients", []float32{1, 2}),
						onnx.AttrString("post_transform", "LOGISTIC"),
						onnx.AttrInt("multi_class", 0),
					},
				},
				{Name: "scaled", OpType: "Mul", Input: []string{"scores", "scale"}, Output: []string{"scaled"}},
				{Name: "reduce", OpType: "ReduceSum", Input: []string{"scaled", "axes"}, Output: []string{"probabilities"}},
			},
		},
	}
}

func TestFromONNX(t *testing.T) {
	zm, err := FromONNX(linearModel(), "0.1.0")
	require.NoError(t, err)

	md := zm.GetMetadata()
	assert.Equal(t, ProducerName, md.GetProducerName())
	assert.Equal(t, "0.1.0", md.GetProducerVersion())
	assert.Equal(t, int64(12), md.GetOpsetVersion())

	g := zm.GetGraph()
	require.Len(t, g.GetNodes(), 3)
	linear := g.GetNodes()[0]
	assert.Equal(t, "ai.onnx.ml.LinearClassifier", linear.GetOpType())
	assert.Equal(t, []string{"input"}, linear.GetInputs())
	assert.Equal(t, []string{"label", "scores"}, linear.GetOutputs())

	attrs := linear.GetAttributes()
	assert.Equal(t, []int64{0, 1}, attrs["classlabels_ints"].GetInts().GetVal())
	assert.Equal(t, []float32{1, 2}, attrs["coefficients"].GetFloats().GetVal())
	assert.Equal(t, "LOGISTIC", attrs["post_transform"].GetS())
	assert.Equal(t, int64(0), attrs["multi_class"].GetI())

	mul := g.GetNodes()[1]
	assert.Equal(t, "Mul", mul.GetOpType())
	assert.Equal(t, []string{"scores", "scale"}, mul.GetInputs(), "float initializers stay inputs")

	reduce := g.GetNodes()[2]
	assert.Equal(t, []string{"scaled"}, reduce.GetInputs(), "integer initializers become attributes")
	assert.Equal(t, []int64{1}, reduce.GetAttributes()["axes"].GetInts().GetVal())

	params := g.GetParameters()
	require.Len(t, params, 1)
	scale := params["scale"]
	require.NotNil(t, scale)
	assert.Equal(t, zmf.Tensor_FLOAT32, scale.GetDtype())
	assert.Equal(t, []int64{2}, scale.GetShape())
	require.Len(t, scale.GetData(), 8)
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(scale.GetData()[4:])))

	require.Len(t, g.GetInputs(), 1)
	assert.Equal(t, "input", g.GetInputs()[0].GetName())
	assert.Equal(t, []int64{-1, 2}, g.GetInputs()[0].GetShape())
	assert.Empty(t, g.GetOutputs()[0].GetShape())
}

func TestFromONNXErrors(t *testing.T) {
	_, err := FromONNX(&onnx.ModelProto{}, "0.1.0")
	assert.Error(t, err)

	m := linearModel()
	m.Graph.Initializer[1].Int64Data = nil
	m.Graph.Initializer[1].RawData = []byte{1, 2, 3}
	_, err = FromONNX(m, "0.1.0")
	assert.Error(t, err)
}

func TestInt64Data(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(math.MaxUint64)) // -1
	got, err := int64Data(&onnx.TensorProto{DataType: int32(onnx.TensorProto_INT64), RawData: raw})
	require.NoError(t, err)
	assert.Equal(t, []int64{-1}, got)

	got, err = int64Data(&onnx.TensorProto{DataType: int32(onnx.TensorProto_INT32), Int32Data: []int32{3, -4}})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, -4}, got)

	_, err = int64Data(&onnx.TensorProto{DataType: int32(onnx.TensorProto_FLOAT), RawData: []byte{0, 0, 0, 0}})
	assert.Error(t, err)
}

func TestExportFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.onnx")
	dst := filepath.Join(dir, "model.zmf")
	data, err := onnx.Marshal(linearModel())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	written, err := ExportFile(src, dst, "0.1.0")
	require.NoError(t, err)

	loaded, err := Load(dst)
	require.NoError(t, err)
	assert.Equal(t, len(written.GetGraph().GetNodes()), len(loaded.GetGraph().GetNodes()))
	assert.Equal(t, ProducerName, loaded.GetMetadata().GetProducerName())

	_, err = ExportFile(filepath.Join(dir, "missing.onnx"), dst, "0.1.0")
	assert.Error(t, err)
	require.NoError(t, os.WriteFile(dst, []byte{0xff}, 0o644))
	_, err = Load(dst)
	assert.Error(t, err)
}
