package onnx

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The subset of onnx-ml.proto (package onnx, proto2) that skonnx reads and
// writes. Field numbers, types and packing follow the upstream schema.

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
)

func optional(name string, num int32, typ fieldType, typeName ...string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	if len(typeName) > 0 {
		f.TypeName = proto.String(typeName[0])
	}
	return f
}

func repeated(name string, num int32, typ fieldType, typeName ...string) *descriptorpb.FieldDescriptorProto {
	f := optional(name, num, typ, typeName...)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func packed(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(true)}
	return f
}

func oneof(f *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

func schemaFile() *descriptorpb.FileDescriptorProto {
	attrTypes := []string{
		"UNDEFINED", "FLOAT", "INT", "STRING", "TENSOR", "GRAPH", "FLOATS", "INTS",
		"STRINGS", "TENSORS", "GRAPHS", "SPARSE_TENSOR", "SPARSE_TENSORS", "TYPE_PROTO", "TYPE_PROTOS",
	}
	attrEnum := &descriptorpb.EnumDescriptorProto{Name: proto.String("AttributeType")}
	for i, name := range attrTypes {
		attrEnum.Value = append(attrEnum.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(int32(i)),
		})
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("onnx-ml.proto"),
		Package: proto.String("onnx"),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("AttributeProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					optional("name", 1, tString),
					optional("f", 2, tFloat),
					optional("i", 3, tInt64),
					optional("s", 4, tBytes),
					optional("t", 5, tMessage, ".onnx.TensorProto"),
					optional("g", 6, tMessage, ".onnx.GraphProto"),
					repeated("floats", 7, tFloat),
					repeated("ints", 8, tInt64),
					repeated("strings", 9, tBytes),
					repeated("tensors", 10, tMessage, ".onnx.TensorProto"),
					repeated("graphs", 11, tMessage, ".onnx.GraphProto"),
					optional("doc_string", 13, tString),
					optional("type", 20, tEnum, ".onnx.AttributeProto.AttributeType"),
					optional("ref_attr_name", 21, tString),
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{attrEnum},
			},
			{
				Name: proto.String("ValueInfoProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					optional("name", 1, tString),
					optional("type", 2, tMessage, ".onnx.TypeProto"),
					optional("doc_string", 3, tString),
				},
			},
			{
				Name: proto.String("NodeProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated("input", 1, tString),
					repeated("output", 2, tString),
					optional("name", 3, tString),
					optional("op_type", 4, tString),
					repeated("attribute", 5, tMessage, ".onnx.AttributeProto"),
					optional("doc_string", 6, tString),
					optional("domain", 7, tString),
				},
			},
			{
				Name: proto.String("ModelProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					optional("ir_version", 1, tInt64),
					optional("producer_name", 2, tString),
					optional("producer_version", 3, tString),
					optional("domain", 4, tString),
					optional("model_version", 5, tInt64),
					optional("doc_string", 6, tString),
					optional("graph", 7, tMessage, ".onnx.GraphProto"),
					repeated("opset_import", 8, tMessage, ".onnx.OperatorSetIdProto"),
					repeated("metadata_props", 14, tMessage, ".onnx.StringStringEntryProto"),
				},
			},
			{
				Name: proto.String("StringStringEntryProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					optional("key", 1, tString),
					optional("value", 2, tString),
				},
			},
			{
				Name: proto.String("GraphProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated("node", 1, tMessage, ".onnx.NodeProto"),
					optional("name", 2, tString),
					repeated("initializer", 5, tMessage, ".onnx.TensorProto"),
					optional("doc_string", 10, tString),
					repeated("input", 11, tMessage, ".onnx.ValueInfoProto"),
					repeated("output", 12, tMessage, ".onnx.ValueInfoProto"),
					repeated("value_info", 13, tMessage, ".onnx.ValueInfoProto"),
				},
			},
			{
				Name: proto.String("TensorProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated("dims", 1, tInt64),
					optional("data_type", 2, tInt32),
					packed(repeated("float_data", 4, tFloat)),
					packed(repeated("int32_data", 5, tInt32)),
					repeated("string_data", 6, tBytes),
					packed(repeated("int64_data", 7, tInt64)),
					optional("name", 8, tString),
					optional("raw_data", 9, tBytes),
					packed(repeated("double_data", 10, tDouble)),
					optional("doc_string", 12, tString),
				},
			},
			{
				Name: proto.String("TensorShapeProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated("dim", 1, tMessage, ".onnx.TensorShapeProto.Dimension"),
				},
				NestedType: []*descriptorpb.DescriptorProto{{
					Name: proto.String("Dimension"),
					Field: []*descriptorpb.FieldDescriptorProto{
						oneof(optional("dim_value", 1, tInt64), 0),
						oneof(optional("dim_param", 2, tString), 0),
						optional("denotation", 3, tString),
					},
					OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("value")}},
				}},
			},
			{
				Name: proto.String("TypeProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					oneof(optional("tensor_type", 1, tMessage, ".onnx.TypeProto.Tensor"), 0),
					oneof(optional("sequence_type", 4, tMessage, ".onnx.TypeProto.Sequence"), 0),
					oneof(optional("map_type", 5, tMessage, ".onnx.TypeProto.Map"), 0),
					optional("denotation", 6, tString),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String("Tensor"),
						Field: []*descriptorpb.FieldDescriptorProto{
							optional("elem_type", 1, tInt32),
							optional("shape", 2, tMessage, ".onnx.TensorShapeProto"),
						},
					},
					{
						Name: proto.String("Sequence"),
						Field: []*descriptorpb.FieldDescriptorProto{
							optional("elem_type", 1, tMessage, ".onnx.TypeProto"),
						},
					},
					{
						Name: proto.String("Map"),
						Field: []*descriptorpb.FieldDescriptorProto{
							optional("key_type", 1, tInt32),
							optional("value_type", 2, tMessage, ".onnx.TypeProto"),
						},
					},
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("value")}},
			},
			{
				Name: proto.String("OperatorSetIdProto"),
				Field: []*descriptorpb.FieldDescriptorProto{
					optional("domain", 1, tString),
					optional("version", 2, tInt64),
				},
			},
		},
	}
}

var schema = func() protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(schemaFile(), nil)
	if err != nil {
		panic("onnx: invalid schema: " + err.Error())
	}
	return fd
}()

var (
	modelDesc     = schema.Messages().ByName("ModelProto")
	opsetDesc     = schema.Messages().ByName("OperatorSetIdProto")
	entryDesc     = schema.Messages().ByName("StringStringEntryProto")
	graphDesc     = schema.Messages().ByName("GraphProto")
	nodeDesc      = schema.Messages().ByName("NodeProto")
	attributeDesc = schema.Messages().ByName("AttributeProto")
	valueInfoDesc = schema.Messages().ByName("ValueInfoProto")
	typeDesc      = schema.Messages().ByName("TypeProto")
	shapeDesc     = schema.Messages().ByName("TensorShapeProto")
	tensorDesc    = schema.Messages().ByName("TensorProto")
)
