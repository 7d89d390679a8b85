package inspector

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerfoo/zmf"
	"go.yaml.in/yaml/v3"
	"google.golang.org/protobuf/proto"

	"github.com/zerfoo/skonnx/internal/onnx"
)

func createOnnxModel(t *testing.T, dir, filename string) string {
	t.Helper()
	model := &onnx.ModelProto{
		IrVersion:    7,
		ProducerName: "skonnx",
		OpsetImport: []*onnx.OperatorSetIdProto{
			{Version: 12},
			{Domain: "ai.onnx.ml", Version: 2},
		},
		MetadataProps: []*onnx.StringStringEntryProto{{Key: "source_type", Value: "sklearn.tree._classes.DecisionTreeClassifier"}},
		Graph: &onnx.GraphProto{
			Name:   "DecisionTreeClassifier",
			Input:  []*onnx.ValueInfoProto{{Name: "input", Type: onnx.TensorType(onnx.TensorProto_FLOAT, -1, 6)}},
			Output: []*onnx.ValueInfoProto{{Name: "output_label", Type: onnx.TensorType(onnx.TensorProto_INT64, -1)}},
			Node: []*onnx.NodeProto{
				{
					Name: "tree", OpType: "TreeEnsembleClassifier", Domain: "ai.onnx.ml",
					Input: []string{"input"}, Output: []string{"output_label", "scores"},
					Attribute: []*onnx.AttributeProto{
						onnx.AttrString("post_transform", "NONE"),
						onnx.AttrInts("classlabels_int64s", []int64{0, 1}),
					},
				},
			},
		},
	}
	data, err := onnx.Marshal(model)
	require.NoError(t, err)
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func createZmfModel(t *testing.T, dir, filename string) string {
	t.Helper()
	model := &zmf.Model{
		Metadata: &zmf.Metadata{
			ProducerName:    "test-producer",
			ProducerVersion: "1.0",
			OpsetVersion:    1,
		},
		Graph: &zmf.Graph{
			Nodes: []*zmf.Node{
				{Name: "zmf_node1", OpType: "Add"},
			},
			Parameters: make(map[string]*zmf.Tensor),
		},
	}
	data, err := proto.Marshal(model)
	require.NoError(t, err)
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInspectONNX(t *testing.T) {
	path := createOnnxModel(t, t.TempDir(), "test.onnx")
	var buf bytes.Buffer
	require.NoError(t, Inspect(&buf, path, "onnx", FormatText))
	out := buf.String()

	for _, want := range []string{
		"Inspecting ONNX model from: " + path,
		"Successfully loaded model with IR version: 7",
		"Producer: skonnx",
		"Opset version: 12",
		"Opset version (ai.onnx.ml): 2",
		"Metadata: source_type=sklearn.tree._classes.DecisionTreeClassifier",
		"Graph has 1 nodes.",
		"  - Name: input, Type: tensor(FLOAT), Shape: [-1 6]",
		"- Node: tree, OpType: ai.onnx.ml.TreeEnsembleClassifier",
		"  Attributes: classlabels_int64s, post_transform",
	} {
		assert.Contains(t, out, want)
	}
}

func TestInspectZMF(t *testing.T) {
	path := createZmfModel(t, t.TempDir(), "test.zmf")
	var buf bytes.Buffer
	require.NoError(t, Inspect(&buf, path, "zmf", FormatText))
	out := buf.String()

	for _, want := range []string{
		"Inspecting ZMF model from:",
		"Producer: test-producer 1.0",
		"Opset version: 1",
		"Graph has 1 nodes.",
		"Graph has 0 parameters.",
		"- Node: zmf_node1, OpType: Add",
	} {
		assert.Contains(t, out, want)
	}
}

func TestInspectYAML(t *testing.T) {
	path := createOnnxModel(t, t.TempDir(), "test.onnx")
	var buf bytes.Buffer
	require.NoError(t, Inspect(&buf, path, "", FormatYAML))

	var got Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "onnx", got.Kind)
	assert.Equal(t, int64(7), got.IRVersion)
	assert.Equal(t, map[string]int64{"ai.onnx": 12, "ai.onnx.ml": 2}, got.Opsets)
	require.Len(t, got.Inputs, 1)
	assert.Equal(t, []int64{-1, 6}, got.Inputs[0].Shape)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, []string{"classlabels_int64s", "post_transform"}, got.Nodes[0].Attributes)
}

func TestInspectErrors(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	assert.Error(t, Inspect(&buf, filepath.Join(dir, "model.bin"), "", FormatText))
	assert.Error(t, Inspect(&buf, filepath.Join(dir, "model.onnx"), "tflite", FormatText))
	assert.Error(t, Inspect(&buf, filepath.Join(dir, "missing.onnx"), "", FormatText))

	path := createOnnxModel(t, dir, "ok.onnx")
	assert.Error(t, Inspect(&buf, path, "onnx", "json"))

	// explicit type with a matching file
	zmfPath := createZmfModel(t, dir, "model.zmf")
	_, err := Load(zmfPath, "zmf")
	assert.NoError(t, err)
}
