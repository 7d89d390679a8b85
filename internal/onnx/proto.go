// Package onnx holds the ONNX protobuf messages used by skonnx. Only the fields
// needed to write and re-read classical ML graphs are modelled. Encoding goes
// through the protobuf runtime against the onnx-ml schema in schema.go.
package onnx

// ModelProto is the top-level ONNX model.
type ModelProto struct {
	IrVersion       int64
	OpsetImport     []*OperatorSetIdProto
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []*StringStringEntryProto
}

// OperatorSetIdProto names an operator set and its version.
type OperatorSetIdProto struct {
	Domain  string
	Version int64
}

// StringStringEntryProto is a metadata key/value pair.
type StringStringEntryProto struct {
	Key   string
	Value string
}

// GraphProto is a computation graph.
type GraphProto struct {
	Node        []*NodeProto
	Name        string
	Initializer []*TensorProto
	DocString   string
	Input       []*ValueInfoProto
	Output      []*ValueInfoProto
	ValueInfo   []*ValueInfoProto
}

// NodeProto is a single operator invocation.
type NodeProto struct {
	Input     []string
	Output    []string
	Name      string
	OpType    string
	Domain    string
	Attribute []*AttributeProto
	DocString string
}

// AttributeProto is a named operator attribute.
type AttributeProto struct {
	Name      string
	Type      AttributeProto_AttributeType
	F         float32
	I         int64
	S         []byte
	T         *TensorProto
	Floats    []float32
	Ints      []int64
	Strings   [][]byte
	DocString string
}

// AttributeProto_AttributeType enumerates attribute value kinds.
type AttributeProto_AttributeType int32

const (
	AttributeProto_UNDEFINED AttributeProto_AttributeType = 0
	AttributeProto_FLOAT     AttributeProto_AttributeType = 1
	AttributeProto_INT       AttributeProto_AttributeType = 2
	AttributeProto_STRING    AttributeProto_AttributeType = 3
	AttributeProto_TENSOR    AttributeProto_AttributeType = 4
	AttributeProto_GRAPH     AttributeProto_AttributeType = 5
	AttributeProto_FLOATS    AttributeProto_AttributeType = 6
	AttributeProto_INTS      AttributeProto_AttributeType = 7
	AttributeProto_STRINGS   AttributeProto_AttributeType = 8
	AttributeProto_TENSORS   AttributeProto_AttributeType = 9
	AttributeProto_GRAPHS    AttributeProto_AttributeType = 10
)

var attributeTypeNames = map[AttributeProto_AttributeType]string{
	AttributeProto_UNDEFINED: "UNDEFINED",
	AttributeProto_FLOAT:     "FLOAT",
	AttributeProto_INT:       "INT",
	AttributeProto_STRING:    "STRING",
	AttributeProto_TENSOR:    "TENSOR",
	AttributeProto_GRAPH:     "GRAPH",
	AttributeProto_FLOATS:    "FLOATS",
	AttributeProto_INTS:      "INTS",
	AttributeProto_STRINGS:   "STRINGS",
	AttributeProto_TENSORS:   "TENSORS",
	AttributeProto_GRAPHS:    "GRAPHS",
}

func (t AttributeProto_AttributeType) String() string {
	if s, ok := attributeTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// ValueInfoProto describes a named graph value.
type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string
}

// TypeProto is a value type. Exactly one of the members is set.
type TypeProto struct {
	TensorType   *TypeProto_Tensor
	SequenceType *TypeProto_Sequence
	MapType      *TypeProto_Map
	Denotation   string
}

// TypeProto_Tensor is a dense tensor type.
type TypeProto_Tensor struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TypeProto_Sequence is a sequence of values of the same type.
type TypeProto_Sequence struct {
	ElemType *TypeProto
}

// TypeProto_Map maps a scalar key type to a value type.
type TypeProto_Map struct {
	KeyType   int32
	ValueType *TypeProto
}

// TensorShapeProto is an ordered list of dimensions.
type TensorShapeProto struct {
	Dim []*TensorShapeProto_Dimension
}

// TensorShapeProto_Dimension is either a fixed value or a symbolic parameter.
// A dimension with neither set is unknown.
type TensorShapeProto_Dimension struct {
	DimValue    int64
	DimParam    string
	HasDimValue bool
}

// TensorProto is a constant tensor.
type TensorProto struct {
	Dims       []int64
	DataType   int32
	FloatData  []float32
	Int32Data  []int32
	StringData [][]byte
	Int64Data  []int64
	Name       string
	RawData    []byte
	DoubleData []float64
	DocString  string
}

// TensorProto_DataType enumerates tensor element types.
type TensorProto_DataType int32

const (
	TensorProto_UNDEFINED TensorProto_DataType = 0
	TensorProto_FLOAT     TensorProto_DataType = 1
	TensorProto_UINT8     TensorProto_DataType = 2
	TensorProto_INT8      TensorProto_DataType = 3
	TensorProto_UINT16    TensorProto_DataType = 4
	TensorProto_INT16     TensorProto_DataType = 5
	TensorProto_INT32     TensorProto_DataType = 6
	TensorProto_INT64     TensorProto_DataType = 7
	TensorProto_STRING    TensorProto_DataType = 8
	TensorProto_BOOL      TensorProto_DataType = 9
	TensorProto_FLOAT16   TensorProto_DataType = 10
	TensorProto_DOUBLE    TensorProto_DataType = 11
	TensorProto_UINT32    TensorProto_DataType = 12
	TensorProto_UINT64    TensorProto_DataType = 13
	TensorProto_BFLOAT16  TensorProto_DataType = 16
)

// TensorProto_DataType_name maps element types to their proto names.
var TensorProto_DataType_name = map[int32]string{
	0:  "UNDEFINED",
	1:  "FLOAT",
	2:  "UINT8",
	3:  "INT8",
	4:  "UINT16",
	5:  "INT16",
	6:  "INT32",
	7:  "INT64",
	8:  "STRING",
	9:  "BOOL",
	10: "FLOAT16",
	11: "DOUBLE",
	12: "UINT32",
	13: "UINT64",
	16: "BFLOAT16",
}

func (t TensorProto_DataType) String() string {
	if s, ok := TensorProto_DataType_name[int32(t)]; ok {
		return s
	}
	return "UNKNOWN"
}

// Getters are nil-safe so callers can chain them like generated protobuf code.

func (m *ModelProto) GetIrVersion() int64 {
	if m == nil {
		return 0
	}
	return m.IrVersion
}

func (m *ModelProto) GetOpsetImport() []*OperatorSetIdProto {
	if m == nil {
		return nil
	}
	return m.OpsetImport
}

func (m *ModelProto) GetGraph() *GraphProto {
	if m == nil {
		return nil
	}
	return m.Graph
}

func (g *GraphProto) GetNode() []*NodeProto {
	if g == nil {
		return nil
	}
	return g.Node
}

func (g *GraphProto) GetInput() []*ValueInfoProto {
	if g == nil {
		return nil
	}
	return g.Input
}

func (g *GraphProto) GetOutput() []*ValueInfoProto {
	if g == nil {
		return nil
	}
	return g.Output
}

func (g *GraphProto) GetInitializer() []*TensorProto {
	if g == nil {
		return nil
	}
	return g.Initializer
}

func (v *ValueInfoProto) GetType() *TypeProto {
	if v == nil {
		return nil
	}
	return v.Type
}

func (t *TypeProto) GetTensorType() *TypeProto_Tensor {
	if t == nil {
		return nil
	}
	return t.TensorType
}

func (t *TypeProto_Tensor) GetShape() *TensorShapeProto {
	if t == nil {
		return nil
	}
	return t.Shape
}

func (s *TensorShapeProto) GetDim() []*TensorShapeProto_Dimension {
	if s == nil {
		return nil
	}
	return s.Dim
}

// OpsetVersion returns the imported version of domain, or 0 when absent.
// The default domain may be spelled "" or "ai.onnx".
func (m *ModelProto) OpsetVersion(domain string) int64 {
	for _, op := range m.GetOpsetImport() {
		d := op.Domain
		if d == "ai.onnx" {
			d = ""
		}
		if d == domain {
			return op.Version
		}
	}
	return 0
}

// Attr returns the node attribute with the given name.
func (n *NodeProto) Attr(name string) (*AttributeProto, bool) {
	for _, a := range n.Attribute {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}
