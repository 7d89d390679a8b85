package onnx

// Helpers for assembling graphs by hand.

func AttrInt(name string, v int64) *AttributeProto {
	return &AttributeProto{Name: name, Type: AttributeProto_INT, I: v}
}

func AttrFloat(name string, v float32) *AttributeProto {
	return &AttributeProto{Name: name, Type: AttributeProto_FLOAT, F: v}
}

func AttrString(name, v string) *AttributeProto {
	return &AttributeProto{Name: name, Type: AttributeProto_STRING, S: []byte(v)}
}

func AttrInts(name string, v []int64) *AttributeProto {
	return &AttributeProto{Name: name, Type: AttributeProto_INTS, Ints: v}
}

func AttrFloats(name string, v []float32) *AttributeProto {
	return &AttributeProto{Name: name, Type: AttributeProto_FLOATS, Floats: v}
}

func AttrStrings(name string, v []string) *AttributeProto {
	s := make([][]byte, len(v))
	for i, x := range v {
		s[i] = []byte(x)
	}
	return &AttributeProto{Name: name, Type: AttributeProto_STRINGS, Strings: s}
}

// StringsValue returns the STRINGS payload as Go strings.
func (a *AttributeProto) StringsValue() []string {
	out := make([]string, len(a.Strings))
	for i, s := range a.Strings {
		out[i] = string(s)
	}
	return out
}

// Dim returns a fixed dimension, or an unknown one when v < 0.
func Dim(v int64) *TensorShapeProto_Dimension {
	if v < 0 {
		return &TensorShapeProto_Dimension{}
	}
	return &TensorShapeProto_Dimension{DimValue: v, HasDimValue: true}
}

// TensorType builds a tensor TypeProto. A negative dim is left unknown.
func TensorType(elem TensorProto_DataType, dims ...int64) *TypeProto {
	shape := &TensorShapeProto{}
	for _, d := range dims {
		shape.Dim = append(shape.Dim, Dim(d))
	}
	return &TypeProto{TensorType: &TypeProto_Tensor{ElemType: int32(elem), Shape: shape}}
}

// SequenceOfMaps builds seq(map(key, tensor(float))), the ZipMap output type.
func SequenceOfMaps(key TensorProto_DataType) *TypeProto {
	return &TypeProto{SequenceType: &TypeProto_Sequence{
		ElemType: &TypeProto{MapType: &TypeProto_Map{
			KeyType:   int32(key),
			ValueType: &TypeProto{TensorType: &TypeProto_Tensor{ElemType: int32(TensorProto_FLOAT)}},
		}},
	}}
}

// Shape returns the dims of a tensor type with -1 for unknown dimensions.
func (t *TypeProto) Shape() []int64 {
	dims := t.GetTensorType().GetShape().GetDim()
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d.HasDimValue {
			out[i] = d.DimValue
		} else {
			out[i] = -1
		}
	}
	return out
}

// String renders a type in the notation used by onnx.helper.
func (t *TypeProto) String() string {
	switch {
	case t == nil:
		return "<nil>"
	case t.TensorType != nil:
		return "tensor(" + TensorProto_DataType(t.TensorType.ElemType).String() + ")"
	case t.SequenceType != nil:
		return "seq(" + t.SequenceType.ElemType.String() + ")"
	case t.MapType != nil:
		return "map(" + TensorProto_DataType(t.MapType.KeyType).String() + "," + t.MapType.ValueType.String() + ")"
	}
	return "undefined"
}
