package pyobj

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/nlpodyssey/gopickle/types"
)

// DType is a numpy data type. Kind follows numpy's dtype.kind codes:
// b bool, i signed, u unsigned, f float, O object, V void/structured,
// S bytes, U unicode.
type DType struct {
	Kind      byte
	Size      int
	BigEndian bool
	Names     []string
	Fields    map[string]Field
}

// Field is one member of a structured dtype.
type Field struct {
	DType  *DType
	Offset int
}

type dtypeClass struct{}

// Call implements numpy.dtype(spec, align, copy).
func (dtypeClass) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("numpy.dtype: missing spec")
	}
	spec, err := String(args[0])
	if err != nil {
		return nil, fmt.Errorf("numpy.dtype: %w", err)
	}
	return ParseDType(spec)
}

// ParseDType parses a type string such as "f8", "<i4", "|u1" or "V64".
func ParseDType(spec string) (*DType, error) {
	dt := &DType{}
	s := spec
	if len(s) > 0 {
		switch s[0] {
		case '<', '=', '|':
			s = s[1:]
		case '>':
			dt.BigEndian = true
			s = s[1:]
		}
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("invalid dtype %q", spec)
	}
	dt.Kind = s[0]
	switch dt.Kind {
	case 'b', 'i', 'u', 'f', 'O', 'V', 'S', 'U':
	default:
		return nil, fmt.Errorf("unsupported dtype %q", spec)
	}
	if len(s) > 1 {
		n, err := strconv.Atoi(s[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid dtype size in %q", spec)
		}
		dt.Size = n
	}
	if dt.Kind == 'U' {
		dt.Size *= 4
	}
	return dt, nil
}

// PySetState restores (version, byteorder, subarray, names, fields, elsize,
// alignment, flags[, metadata]).
func (dt *DType) PySetState(state interface{}) error {
	items, err := Slice(state)
	if err != nil {
		return fmt.Errorf("numpy.dtype state: %w", err)
	}
	if len(items) < 6 {
		return fmt.Errorf("numpy.dtype state has %d items", len(items))
	}
	if order, ok := items[1].(string); ok {
		dt.BigEndian = order == ">"
	}
	if items[3] != nil {
		names, err := Slice(items[3])
		if err != nil {
			return fmt.Errorf("numpy.dtype names: %w", err)
		}
		fields, ok := items[4].(*types.Dict)
		if !ok {
			return fmt.Errorf("numpy.dtype fields: expected dict, got %T", items[4])
		}
		dt.Fields = make(map[string]Field, len(names))
		for _, n := range names {
			name, err := String(n)
			if err != nil {
				return fmt.Errorf("numpy.dtype names: %w", err)
			}
			f, err := parseField(fields, name)
			if err != nil {
				return err
			}
			dt.Names = append(dt.Names, name)
			dt.Fields[name] = f
		}
	}
	if elsize, err := Int(items[5]); err == nil && elsize > 0 {
		dt.Size = int(elsize)
	}
	return nil
}

func parseField(fields *types.Dict, name string) (Field, error) {
	v, ok := fields.Get(name)
	if !ok {
		return Field{}, fmt.Errorf("numpy.dtype: field %q missing", name)
	}
	desc, err := Slice(v)
	if err != nil || len(desc) < 2 {
		return Field{}, fmt.Errorf("numpy.dtype: field %q has invalid descriptor", name)
	}
	sub, ok := desc[0].(*DType)
	if !ok {
		return Field{}, fmt.Errorf("numpy.dtype: field %q type is %T", name, desc[0])
	}
	off, err := Int(desc[1])
	if err != nil {
		return Field{}, fmt.Errorf("numpy.dtype: field %q offset: %w", name, err)
	}
	return Field{DType: sub, Offset: int(off)}, nil
}

func (dt *DType) String() string {
	if dt.Kind == 'V' && len(dt.Names) > 0 {
		return fmt.Sprintf("struct%v", dt.Names)
	}
	return fmt.Sprintf("%c%d", dt.Kind, dt.Size)
}

func (dt *DType) order() binary.ByteOrder {
	if dt.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// numeric reports whether elements decode to numbers.
func (dt *DType) numeric() bool {
	switch dt.Kind {
	case 'b', 'i', 'u', 'f':
		return true
	}
	return false
}

// float decodes one numeric element.
func (dt *DType) float(b []byte) (float64, error) {
	if dt.Kind == 'f' {
		switch dt.Size {
		case 4:
			return float64(math.Float32frombits(dt.order().Uint32(b))), nil
		case 8:
			return math.Float64frombits(dt.order().Uint64(b)), nil
		}
		return 0, fmt.Errorf("unsupported float size %d", dt.Size)
	}
	i, err := dt.int(b)
	return float64(i), err
}

// int decodes one integer or bool element.
func (dt *DType) int(b []byte) (int64, error) {
	o := dt.order()
	switch dt.Kind {
	case 'b':
		if b[0] != 0 {
			return 1, nil
		}
		return 0, nil
	case 'i':
		switch dt.Size {
		case 1:
			return int64(int8(b[0])), nil
		case 2:
			return int64(int16(o.Uint16(b))), nil
		case 4:
			return int64(int32(o.Uint32(b))), nil
		case 8:
			return int64(o.Uint64(b)), nil
		}
	case 'u':
		switch dt.Size {
		case 1:
			return int64(b[0]), nil
		case 2:
			return int64(o.Uint16(b)), nil
		case 4:
			return int64(o.Uint32(b)), nil
		case 8:
			return int64(o.Uint64(b)), nil
		}
	case 'f':
		f, err := dt.float(b)
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("float %v is not integral", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("dtype %s is not an integer type", dt)
}

// scalarFunc is numpy.core.multiarray.scalar(dtype, bytes).
type scalarFunc struct{}

func (scalarFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("numpy scalar: expected 2 arguments, got %d", len(args))
	}
	dt, ok := args[0].(*DType)
	if !ok {
		return nil, fmt.Errorf("numpy scalar: dtype is %T", args[0])
	}
	raw, err := Bytes(args[1])
	if err != nil {
		return nil, fmt.Errorf("numpy scalar: %w", err)
	}
	if len(raw) < dt.Size {
		return nil, fmt.Errorf("numpy scalar: %d bytes for %s", len(raw), dt)
	}
	switch dt.Kind {
	case 'f':
		return dt.float(raw)
	case 'b':
		i, err := dt.int(raw)
		return i != 0, err
	case 'i', 'u':
		return dt.int(raw)
	}
	return nil, fmt.Errorf("numpy scalar: unsupported dtype %s", dt)
}
