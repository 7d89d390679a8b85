package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func sampleModel() *ModelProto {
	return &ModelProto{
		IrVersion:       7,
		ProducerName:    "skonnx",
		ProducerVersion: "0.1.0",
		OpsetImport: []*OperatorSetIdProto{
			{Domain: "", Version: 12},
			{Domain: "ai.onnx.ml", Version: 2},
		},
		MetadataProps: []*StringStringEntryProto{{Key: "source", Value: "model.pkl"}},
		Graph: &GraphProto{
			Name: "g",
			Node: []*NodeProto{{
				Name:   "zip",
				OpType: "ZipMap",
				Domain: "ai.onnx.ml",
				Input:  []string{"probabilities"},
				Output: []string{"output_probability"},
				Attribute: []*AttributeProto{
					AttrInts("classlabels_int64s", []int64{0, 1, -3}),
					AttrFloats("weights", []float32{0.25, 1.5}),
					AttrStrings("modes", []string{"LEAF", "BRANCH_LEQ"}),
					AttrString("post_transform", "NONE"),
					AttrFloat("epsilon", 1e-6),
					AttrInt("axis", -1),
				},
			}},
			Input: []*ValueInfoProto{{Name: "input", Type: TensorType(TensorProto_FLOAT, -1, 6)}},
			Output: []*ValueInfoProto{
				{Name: "output_probability", Type: SequenceOfMaps(TensorProto_INT64)},
			},
			Initializer: []*TensorProto{{
				Name:      "w",
				DataType:  int32(TensorProto_FLOAT),
				Dims:      []int64{2},
				FloatData: []float32{1, 2},
			}},
		},
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := sampleModel()
	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	again, err := Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding must be deterministic")
}

func TestUnmarshalPackedRepeated(t *testing.T) {
	var packed []byte
	for _, v := range []int64{3, 4, 5} {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	var attr []byte
	attr = protowire.AppendTag(attr, 1, protowire.BytesType)
	attr = protowire.AppendString(attr, "ids")
	attr = protowire.AppendTag(attr, 8, protowire.BytesType)
	attr = protowire.AppendBytes(attr, packed)
	attr = protowire.AppendTag(attr, 20, protowire.VarintType)
	attr = protowire.AppendVarint(attr, uint64(AttributeProto_INTS))

	var node []byte
	node = protowire.AppendTag(node, 4, protowire.BytesType)
	node = protowire.AppendString(node, "Identity")
	node = protowire.AppendTag(node, 5, protowire.BytesType)
	node = protowire.AppendBytes(node, attr)
	// unknown field, must be skipped
	node = protowire.AppendTag(node, 99, protowire.VarintType)
	node = protowire.AppendVarint(node, 1)

	var graph []byte
	graph = protowire.AppendTag(graph, 1, protowire.BytesType)
	graph = protowire.AppendBytes(graph, node)

	var model []byte
	model = protowire.AppendTag(model, 7, protowire.BytesType)
	model = protowire.AppendBytes(model, graph)

	m, err := Unmarshal(model)
	require.NoError(t, err)
	require.Len(t, m.GetGraph().GetNode(), 1)
	a, ok := m.Graph.Node[0].Attr("ids")
	require.True(t, ok)
	assert.Equal(t, []int64{3, 4, 5}, a.Ints)
}

func TestUnmarshalTruncated(t *testing.T) {
	data, err := Marshal(sampleModel())
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-3])
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.onnx")
	data, err := Marshal(sampleModel())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), m.OpsetVersion(""))
	assert.Equal(t, int64(2), m.OpsetVersion("ai.onnx.ml"))
	assert.Equal(t, []int64{-1, 6}, m.Graph.Input[0].Type.Shape())
	assert.Equal(t, "seq(map(INT64,tensor(FLOAT)))", m.Graph.Output[0].Type.String())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.onnx"))
	assert.Error(t, err)
}

func TestSchemaMatchesOnnxML(t *testing.T) {
	tests := []struct {
		message string
		field   string
		number  int
		packed  bool
	}{
		{"ModelProto", "graph", 7, false},
		{"ModelProto", "metadata_props", 14, false},
		{"NodeProto", "domain", 7, false},
		{"AttributeProto", "type", 20, false},
		{"AttributeProto", "ints", 8, false},
		{"TensorProto", "float_data", 4, true},
		{"TensorProto", "int64_data", 7, true},
		{"TensorProto", "dims", 1, false},
		{"TypeProto", "map_type", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.message+"."+tt.field, func(t *testing.T) {
			md := schema.Messages().ByName(protoreflect.Name(tt.message))
			require.NotNil(t, md)
			f := md.Fields().ByName(protoreflect.Name(tt.field))
			require.NotNil(t, f)
			assert.Equal(t, protoreflect.FieldNumber(tt.number), f.Number())
			assert.Equal(t, tt.packed, f.IsPacked())
		})
	}
	assert.Equal(t, "value", string(typeDesc.Oneofs().Get(0).Name()))
}

func TestMarshalPacksTensorData(t *testing.T) {
	data, err := Marshal(&ModelProto{Graph: &GraphProto{Initializer: []*TensorProto{{
		DataType:  int32(TensorProto_FLOAT),
		FloatData: []float32{1, 2, 3},
	}}}})
	require.NoError(t, err)

	m, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, m.Graph.Initializer[0].FloatData)

	// graph(7) > initializer(5) > float_data(4) as one length-delimited run
	_, _, n := protowire.ConsumeTag(data)
	graph, _ := protowire.ConsumeBytes(data[n:])
	_, _, n = protowire.ConsumeTag(graph)
	tensor, _ := protowire.ConsumeBytes(graph[n:])
	var floatTags []protowire.Type
	for len(tensor) > 0 {
		num, typ, n := protowire.ConsumeTag(tensor)
		require.Positive(t, n)
		tensor = tensor[n:]
		if num == 4 {
			floatTags = append(floatTags, typ)
		}
		m := protowire.ConsumeFieldValue(num, typ, tensor)
		require.Positive(t, m)
		tensor = tensor[m:]
	}
	assert.Equal(t, []protowire.Type{protowire.BytesType}, floatTags)
}
