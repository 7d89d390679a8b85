// Package zmfexport converts the ONNX graphs produced by skonnx into the ZMF
// model format.
package zmfexport

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/zerfoo/zmf"
	"google.golang.org/protobuf/proto"

	"github.com/zerfoo/skonnx/internal/onnx"
)

// ProducerName is recorded in the ZMF metadata.
const ProducerName = "skonnx"

// FromONNX converts an ONNX model to the ZMF format.
func FromONNX(model *onnx.ModelProto, producerVersion string) (*zmf.Model, error) {
	g := model.GetGraph()
	if g == nil {
		return nil, fmt.Errorf("model graph is nil")
	}

	initializers := make(map[string]*onnx.TensorProto)
	for _, t := range g.GetInitializer() {
		initializers[t.Name] = t
	}

	zm := &zmf.Model{
		Graph: &zmf.Graph{
			Nodes:      make([]*zmf.Node, 0, len(g.GetNode())),
			Parameters: make(map[string]*zmf.Tensor),
			Inputs:     convertValueInfos(g.GetInput()),
			Outputs:    convertValueInfos(g.GetOutput()),
		},
		Metadata: &zmf.Metadata{
			ProducerName:    ProducerName,
			ProducerVersion: producerVersion,
			OpsetVersion:    model.OpsetVersion(""),
		},
	}

	for _, n := range g.GetNode() {
		zn, err := convertNode(n, initializers)
		if err != nil {
			return nil, fmt.Errorf("failed to convert node '%s': %w", n.Name, err)
		}
		zm.Graph.Nodes = append(zm.Graph.Nodes, zn)
	}

	for name, t := range initializers {
		switch onnx.TensorProto_DataType(t.DataType) {
		case onnx.TensorProto_FLOAT, onnx.TensorProto_DOUBLE:
			zt, err := convertTensor(t)
			if err != nil {
				return nil, fmt.Errorf("failed to convert float initializer '%s': %w", name, err)
			}
			zm.Graph.Parameters[name] = zt
		}
	}
	return zm, nil
}

// Save writes a ZMF model to path.
func Save(model *zmf.Model, path string) error {
	data, err := proto.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to marshal ZMF model: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a ZMF model from path.
func Load(path string) (*zmf.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model := &zmf.Model{}
	if err := proto.Unmarshal(data, model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ZMF model: %w", err)
	}
	return model, nil
}

// ExportFile converts the ONNX file at src and writes the ZMF model to dst.
func ExportFile(src, dst, producerVersion string) (*zmf.Model, error) {
	model, err := onnx.LoadFile(src)
	if err != nil {
		return nil, err
	}
	zm, err := FromONNX(model, producerVersion)
	if err != nil {
		return nil, err
	}
	return zm, Save(zm, dst)
}

// convertNode copies a node, promoting constant integer inputs to attributes
// named after the initializer.
func convertNode(n *onnx.NodeProto, initializers map[string]*onnx.TensorProto) (*zmf.Node, error) {
	opType := n.OpType
	if n.Domain != "" {
		opType = n.Domain + "." + n.OpType
	}
	zn := &zmf.Node{
		Name:       n.Name,
		OpType:     opType,
		Outputs:    n.Output,
		Attributes: make(map[string]*zmf.Attribute),
	}
	for _, a := range n.Attribute {
		if za := convertAttribute(a); za != nil {
			zn.Attributes[a.Name] = za
		}
	}

	for _, in := range n.Input {
		t, ok := initializers[in]
		if !ok {
			zn.Inputs = append(zn.Inputs, in)
			continue
		}
		switch onnx.TensorProto_DataType(t.DataType) {
		case onnx.TensorProto_INT64, onnx.TensorProto_INT32:
			ints, err := int64Data(t)
			if err != nil {
				return nil, fmt.Errorf("failed to get data for constant '%s': %w", in, err)
			}
			zn.Attributes[in] = &zmf.Attribute{
				Value: &zmf.Attribute_Ints{Ints: &zmf.Ints{Val: ints}},
			}
		default:
			zn.Inputs = append(zn.Inputs, in)
		}
	}
	return zn, nil
}

func convertAttribute(a *onnx.AttributeProto) *zmf.Attribute {
	za := &zmf.Attribute{}
	switch a.Type {
	case onnx.AttributeProto_FLOAT:
		za.Value = &zmf.Attribute_F{F: a.F}
	case onnx.AttributeProto_INT:
		za.Value = &zmf.Attribute_I{I: a.I}
	case onnx.AttributeProto_STRING:
		za.Value = &zmf.Attribute_S{S: string(a.S)}
	case onnx.AttributeProto_FLOATS:
		za.Value = &zmf.Attribute_Floats{Floats: &zmf.Floats{Val: a.Floats}}
	case onnx.AttributeProto_INTS:
		za.Value = &zmf.Attribute_Ints{Ints: &zmf.Ints{Val: a.Ints}}
	case onnx.AttributeProto_STRINGS:
		za.Value = &zmf.Attribute_Strings{Strings: &zmf.Strings{Val: a.StringsValue()}}
	default:
		return nil
	}
	return za
}

func convertTensor(t *onnx.TensorProto) (*zmf.Tensor, error) {
	zt := &zmf.Tensor{Shape: t.Dims}
	switch onnx.TensorProto_DataType(t.DataType) {
	case onnx.TensorProto_FLOAT:
		zt.Dtype = zmf.Tensor_FLOAT32
		zt.Data = t.RawData
		if len(zt.Data) == 0 {
			zt.Data = make([]byte, 4*len(t.FloatData))
			for i, v := range t.FloatData {
				binary.LittleEndian.PutUint32(zt.Data[4*i:], math.Float32bits(v))
			}
		}
	case onnx.TensorProto_DOUBLE:
		zt.Dtype = zmf.Tensor_FLOAT64
		zt.Data = t.RawData
		if len(zt.Data) == 0 {
			zt.Data = make([]byte, 8*len(t.DoubleData))
			for i, v := range t.DoubleData {
				binary.LittleEndian.PutUint64(zt.Data[8*i:], math.Float64bits(v))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported tensor data type: %s", onnx.TensorProto_DataType(t.DataType))
	}
	return zt, nil
}

func int64Data(t *onnx.TensorProto) ([]int64, error) {
	if t.Int64Data != nil {
		return t.Int64Data, nil
	}
	if t.Int32Data != nil {
		out := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			out[i] = int64(v)
		}
		return out, nil
	}
	raw := t.RawData
	switch onnx.TensorProto_DataType(t.DataType) {
	case onnx.TensorProto_INT64:
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("raw_data length %d is not a multiple of 8 for INT64", len(raw))
		}
		out := make([]int64, len(raw)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, nil
	case onnx.TensorProto_INT32:
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("raw_data length %d is not a multiple of 4 for INT32", len(raw))
		}
		out := make([]int64, len(raw)/4)
		for i := range out {
			out[i] = int64(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return out, nil
	}
	return nil, fmt.Errorf("tensor is not of type INT64 or INT32, but %s", onnx.TensorProto_DataType(t.DataType))
}

// convertValueInfos keeps names and tensor shapes; unknown dimensions become
// -1 and non-tensor values get an empty shape.
func convertValueInfos(infos []*onnx.ValueInfoProto) []*zmf.ValueInfo {
	out := make([]*zmf.ValueInfo, len(infos))
	for i, info := range infos {
		out[i] = &zmf.ValueInfo{
			Name:  info.Name,
			Shape: info.GetType().Shape(),
		}
	}
	return out
}
