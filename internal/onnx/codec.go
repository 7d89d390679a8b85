package onnx

import (
	"bytes"
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Marshal encodes a model in the ONNX protobuf wire format. The output is
// deterministic for a given model.
func Marshal(m *ModelProto) ([]byte, error) {
	msg := dynamicpb.NewMessage(modelDesc)
	fromModel(msg, m)
	return proto.MarshalOptions{Deterministic: true}.Marshal(msg)
}

// Unmarshal decodes an ONNX model. Repeated scalars are accepted packed or
// unpacked and unknown fields are skipped.
func Unmarshal(data []byte) (*ModelProto, error) {
	msg := dynamicpb.NewMessage(modelDesc)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return toModel(msg), nil
}

// LoadFile reads and decodes an ONNX model file.
func LoadFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX file: %w", err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ONNX protobuf: %w", err)
	}
	return m, nil
}

func fd(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	f := m.Descriptor().Fields().ByName(name)
	if f == nil {
		panic(fmt.Sprintf("onnx: %s has no field %s", m.Descriptor().FullName(), name))
	}
	return f
}

// setString and setInt leave empty values unset, as proto2 writers do.
func setString(m protoreflect.Message, name protoreflect.Name, s string) {
	if s != "" {
		m.Set(fd(m, name), protoreflect.ValueOfString(s))
	}
}

func setInt(m protoreflect.Message, name protoreflect.Name, v int64) {
	if v != 0 {
		m.Set(fd(m, name), protoreflect.ValueOfInt64(v))
	}
}

func sub(m protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	return m.Mutable(fd(m, name)).Message()
}

func appendMessage(m protoreflect.Message, name protoreflect.Name, fill func(protoreflect.Message)) {
	list := m.Mutable(fd(m, name)).List()
	e := list.NewElement()
	fill(e.Message())
	list.Append(e)
}

func appendValues(m protoreflect.Message, name protoreflect.Name, n int, at func(int) protoreflect.Value) {
	if n == 0 {
		return
	}
	list := m.Mutable(fd(m, name)).List()
	for i := 0; i < n; i++ {
		list.Append(at(i))
	}
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(fd(m, name)).String()
}

func getInt(m protoreflect.Message, name protoreflect.Name) int64 {
	return m.Get(fd(m, name)).Int()
}

func getBytes(m protoreflect.Message, name protoreflect.Name) []byte {
	f := fd(m, name)
	if !m.Has(f) {
		return nil
	}
	return bytes.Clone(m.Get(f).Bytes())
}

func getMessage(m protoreflect.Message, name protoreflect.Name) (protoreflect.Message, bool) {
	f := fd(m, name)
	if !m.Has(f) {
		return nil, false
	}
	return m.Get(f).Message(), true
}

func eachValue(m protoreflect.Message, name protoreflect.Name, fn func(protoreflect.Value)) {
	list := m.Get(fd(m, name)).List()
	for i := 0; i < list.Len(); i++ {
		fn(list.Get(i))
	}
}

func fromModel(msg protoreflect.Message, m *ModelProto) {
	setInt(msg, "ir_version", m.IrVersion)
	setString(msg, "producer_name", m.ProducerName)
	setString(msg, "producer_version", m.ProducerVersion)
	setString(msg, "domain", m.Domain)
	setInt(msg, "model_version", m.ModelVersion)
	setString(msg, "doc_string", m.DocString)
	if m.Graph != nil {
		fromGraph(sub(msg, "graph"), m.Graph)
	}
	for _, op := range m.OpsetImport {
		appendMessage(msg, "opset_import", func(s protoreflect.Message) {
			setString(s, "domain", op.Domain)
			s.Set(fd(s, "version"), protoreflect.ValueOfInt64(op.Version))
		})
	}
	for _, e := range m.MetadataProps {
		appendMessage(msg, "metadata_props", func(s protoreflect.Message) {
			setString(s, "key", e.Key)
			setString(s, "value", e.Value)
		})
	}
}

func fromGraph(msg protoreflect.Message, g *GraphProto) {
	for _, n := range g.Node {
		appendMessage(msg, "node", func(s protoreflect.Message) { fromNode(s, n) })
	}
	setString(msg, "name", g.Name)
	for _, t := range g.Initializer {
		appendMessage(msg, "initializer", func(s protoreflect.Message) { fromTensor(s, t) })
	}
	setString(msg, "doc_string", g.DocString)
	for _, v := range g.Input {
		appendMessage(msg, "input", func(s protoreflect.Message) { fromValueInfo(s, v) })
	}
	for _, v := range g.Output {
		appendMessage(msg, "output", func(s protoreflect.Message) { fromValueInfo(s, v) })
	}
	for _, v := range g.ValueInfo {
		appendMessage(msg, "value_info", func(s protoreflect.Message) { fromValueInfo(s, v) })
	}
}

func fromNode(msg protoreflect.Message, n *NodeProto) {
	appendValues(msg, "input", len(n.Input), func(i int) protoreflect.Value { return protoreflect.ValueOfString(n.Input[i]) })
	appendValues(msg, "output", len(n.Output), func(i int) protoreflect.Value { return protoreflect.ValueOfString(n.Output[i]) })
	setString(msg, "name", n.Name)
	setString(msg, "op_type", n.OpType)
	for _, a := range n.Attribute {
		appendMessage(msg, "attribute", func(s protoreflect.Message) { fromAttribute(s, a) })
	}
	setString(msg, "doc_string", n.DocString)
	setString(msg, "domain", n.Domain)
}

func fromAttribute(msg protoreflect.Message, a *AttributeProto) {
	setString(msg, "name", a.Name)
	switch a.Type {
	case AttributeProto_FLOAT:
		msg.Set(fd(msg, "f"), protoreflect.ValueOfFloat32(a.F))
	case AttributeProto_INT:
		msg.Set(fd(msg, "i"), protoreflect.ValueOfInt64(a.I))
	case AttributeProto_STRING:
		msg.Set(fd(msg, "s"), protoreflect.ValueOfBytes(a.S))
	case AttributeProto_TENSOR:
		if a.T != nil {
			fromTensor(sub(msg, "t"), a.T)
		}
	}
	appendValues(msg, "floats", len(a.Floats), func(i int) protoreflect.Value { return protoreflect.ValueOfFloat32(a.Floats[i]) })
	appendValues(msg, "ints", len(a.Ints), func(i int) protoreflect.Value { return protoreflect.ValueOfInt64(a.Ints[i]) })
	appendValues(msg, "strings", len(a.Strings), func(i int) protoreflect.Value { return protoreflect.ValueOfBytes(a.Strings[i]) })
	setString(msg, "doc_string", a.DocString)
	msg.Set(fd(msg, "type"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(a.Type)))
}

func fromValueInfo(msg protoreflect.Message, v *ValueInfoProto) {
	setString(msg, "name", v.Name)
	if v.Type != nil {
		fromType(sub(msg, "type"), v.Type)
	}
	setString(msg, "doc_string", v.DocString)
}

func fromType(msg protoreflect.Message, t *TypeProto) {
	switch {
	case t.TensorType != nil:
		s := sub(msg, "tensor_type")
		s.Set(fd(s, "elem_type"), protoreflect.ValueOfInt32(t.TensorType.ElemType))
		if t.TensorType.Shape != nil {
			fromShape(sub(s, "shape"), t.TensorType.Shape)
		}
	case t.SequenceType != nil:
		s := sub(msg, "sequence_type")
		if t.SequenceType.ElemType != nil {
			fromType(sub(s, "elem_type"), t.SequenceType.ElemType)
		}
	case t.MapType != nil:
		s := sub(msg, "map_type")
		s.Set(fd(s, "key_type"), protoreflect.ValueOfInt32(t.MapType.KeyType))
		if t.MapType.ValueType != nil {
			fromType(sub(s, "value_type"), t.MapType.ValueType)
		}
	}
	setString(msg, "denotation", t.Denotation)
}

func fromShape(msg protoreflect.Message, s *TensorShapeProto) {
	for _, d := range s.Dim {
		appendMessage(msg, "dim", func(dm protoreflect.Message) {
			if d.HasDimValue {
				dm.Set(fd(dm, "dim_value"), protoreflect.ValueOfInt64(d.DimValue))
			} else {
				setString(dm, "dim_param", d.DimParam)
			}
		})
	}
}

func fromTensor(msg protoreflect.Message, t *TensorProto) {
	appendValues(msg, "dims", len(t.Dims), func(i int) protoreflect.Value { return protoreflect.ValueOfInt64(t.Dims[i]) })
	msg.Set(fd(msg, "data_type"), protoreflect.ValueOfInt32(t.DataType))
	appendValues(msg, "float_data", len(t.FloatData), func(i int) protoreflect.Value { return protoreflect.ValueOfFloat32(t.FloatData[i]) })
	appendValues(msg, "int32_data", len(t.Int32Data), func(i int) protoreflect.Value { return protoreflect.ValueOfInt32(t.Int32Data[i]) })
	appendValues(msg, "string_data", len(t.StringData), func(i int) protoreflect.Value { return protoreflect.ValueOfBytes(t.StringData[i]) })
	appendValues(msg, "int64_data", len(t.Int64Data), func(i int) protoreflect.Value { return protoreflect.ValueOfInt64(t.Int64Data[i]) })
	setString(msg, "name", t.Name)
	if len(t.RawData) > 0 {
		msg.Set(fd(msg, "raw_data"), protoreflect.ValueOfBytes(t.RawData))
	}
	appendValues(msg, "double_data", len(t.DoubleData), func(i int) protoreflect.Value { return protoreflect.ValueOfFloat64(t.DoubleData[i]) })
	setString(msg, "doc_string", t.DocString)
}

func toModel(msg protoreflect.Message) *ModelProto {
	m := &ModelProto{
		IrVersion:       getInt(msg, "ir_version"),
		ProducerName:    getString(msg, "producer_name"),
		ProducerVersion: getString(msg, "producer_version"),
		Domain:          getString(msg, "domain"),
		ModelVersion:    getInt(msg, "model_version"),
		DocString:       getString(msg, "doc_string"),
	}
	if g, ok := getMessage(msg, "graph"); ok {
		m.Graph = toGraph(g)
	}
	eachValue(msg, "opset_import", func(v protoreflect.Value) {
		s := v.Message()
		m.OpsetImport = append(m.OpsetImport, &OperatorSetIdProto{
			Domain:  getString(s, "domain"),
			Version: getInt(s, "version"),
		})
	})
	eachValue(msg, "metadata_props", func(v protoreflect.Value) {
		s := v.Message()
		m.MetadataProps = append(m.MetadataProps, &StringStringEntryProto{
			Key:   getString(s, "key"),
			Value: getString(s, "value"),
		})
	})
	return m
}

func toGraph(msg protoreflect.Message) *GraphProto {
	g := &GraphProto{
		Name:      getString(msg, "name"),
		DocString: getString(msg, "doc_string"),
	}
	eachValue(msg, "node", func(v protoreflect.Value) { g.Node = append(g.Node, toNode(v.Message())) })
	eachValue(msg, "initializer", func(v protoreflect.Value) { g.Initializer = append(g.Initializer, toTensor(v.Message())) })
	eachValue(msg, "input", func(v protoreflect.Value) { g.Input = append(g.Input, toValueInfo(v.Message())) })
	eachValue(msg, "output", func(v protoreflect.Value) { g.Output = append(g.Output, toValueInfo(v.Message())) })
	eachValue(msg, "value_info", func(v protoreflect.Value) { g.ValueInfo = append(g.ValueInfo, toValueInfo(v.Message())) })
	return g
}

func toNode(msg protoreflect.Message) *NodeProto {
	n := &NodeProto{
		Name:      getString(msg, "name"),
		OpType:    getString(msg, "op_type"),
		Domain:    getString(msg, "domain"),
		DocString: getString(msg, "doc_string"),
	}
	eachValue(msg, "input", func(v protoreflect.Value) { n.Input = append(n.Input, v.String()) })
	eachValue(msg, "output", func(v protoreflect.Value) { n.Output = append(n.Output, v.String()) })
	eachValue(msg, "attribute", func(v protoreflect.Value) { n.Attribute = append(n.Attribute, toAttribute(v.Message())) })
	return n
}

func toAttribute(msg protoreflect.Message) *AttributeProto {
	a := &AttributeProto{
		Name:      getString(msg, "name"),
		Type:      AttributeProto_AttributeType(msg.Get(fd(msg, "type")).Enum()),
		F:         float32(msg.Get(fd(msg, "f")).Float()),
		I:         getInt(msg, "i"),
		S:         getBytes(msg, "s"),
		DocString: getString(msg, "doc_string"),
	}
	if t, ok := getMessage(msg, "t"); ok {
		a.T = toTensor(t)
	}
	eachValue(msg, "floats", func(v protoreflect.Value) { a.Floats = append(a.Floats, float32(v.Float())) })
	eachValue(msg, "ints", func(v protoreflect.Value) { a.Ints = append(a.Ints, v.Int()) })
	eachValue(msg, "strings", func(v protoreflect.Value) { a.Strings = append(a.Strings, bytes.Clone(v.Bytes())) })
	return a
}

func toValueInfo(msg protoreflect.Message) *ValueInfoProto {
	v := &ValueInfoProto{
		Name:      getString(msg, "name"),
		DocString: getString(msg, "doc_string"),
	}
	if t, ok := getMessage(msg, "type"); ok {
		v.Type = toType(t)
	}
	return v
}

func toType(msg protoreflect.Message) *TypeProto {
	t := &TypeProto{Denotation: getString(msg, "denotation")}
	if s, ok := getMessage(msg, "tensor_type"); ok {
		t.TensorType = &TypeProto_Tensor{ElemType: int32(getInt(s, "elem_type"))}
		if sh, ok := getMessage(s, "shape"); ok {
			t.TensorType.Shape = toShape(sh)
		}
	}
	if s, ok := getMessage(msg, "sequence_type"); ok {
		t.SequenceType = &TypeProto_Sequence{}
		if e, ok := getMessage(s, "elem_type"); ok {
			t.SequenceType.ElemType = toType(e)
		}
	}
	if s, ok := getMessage(msg, "map_type"); ok {
		t.MapType = &TypeProto_Map{KeyType: int32(getInt(s, "key_type"))}
		if e, ok := getMessage(s, "value_type"); ok {
			t.MapType.ValueType = toType(e)
		}
	}
	return t
}

func toShape(msg protoreflect.Message) *TensorShapeProto {
	s := &TensorShapeProto{}
	eachValue(msg, "dim", func(v protoreflect.Value) {
		dm := v.Message()
		d := &TensorShapeProto_Dimension{DimParam: getString(dm, "dim_param")}
		if f := fd(dm, "dim_value"); dm.Has(f) {
			d.DimValue = dm.Get(f).Int()
			d.HasDimValue = true
		}
		s.Dim = append(s.Dim, d)
	})
	return s
}

func toTensor(msg protoreflect.Message) *TensorProto {
	t := &TensorProto{
		DataType:  int32(getInt(msg, "data_type")),
		Name:      getString(msg, "name"),
		RawData:   getBytes(msg, "raw_data"),
		DocString: getString(msg, "doc_string"),
	}
	eachValue(msg, "dims", func(v protoreflect.Value) { t.Dims = append(t.Dims, v.Int()) })
	eachValue(msg, "float_data", func(v protoreflect.Value) { t.FloatData = append(t.FloatData, float32(v.Float())) })
	eachValue(msg, "int32_data", func(v protoreflect.Value) { t.Int32Data = append(t.Int32Data, int32(v.Int())) })
	eachValue(msg, "string_data", func(v protoreflect.Value) { t.StringData = append(t.StringData, bytes.Clone(v.Bytes())) })
	eachValue(msg, "int64_data", func(v protoreflect.Value) { t.Int64Data = append(t.Int64Data, v.Int()) })
	eachValue(msg, "double_data", func(v protoreflect.Value) { t.DoubleData = append(t.DoubleData, v.Float()) })
	return t
}
