// Package pickletest writes Python pickles of numpy arrays and scikit-learn
// style objects so tests can build fixtures without a Python toolchain.
package pickletest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Global references a module attribute, as the GLOBAL opcode does.
type Global struct {
	Module string
	Name   string
}

// Tuple is a Python tuple.
type Tuple []interface{}

// List is a Python list.
type List []interface{}

// Item is a dict entry.
type Item struct {
	Key   interface{}
	Value interface{}
}

// Dict is a Python dict with a fixed key order.
type Dict []Item

// Reduce calls Callable with Args and then applies State through BUILD when
// State is not nil.
type Reduce struct {
	Callable interface{}
	Args     Tuple
	State    interface{}
}

// Object is created with NEWOBJ and restored from State with BUILD.
type Object struct {
	Class Global
	State interface{}
}

// ByteArray is a Python bytearray.
type ByteArray []byte

// Dumps serializes v with protocol 3 opcodes. Supported leaves are nil, bool,
// int, int64, float64, string, []byte and ByteArray.
func Dumps(v interface{}) []byte {
	return DumpsProtocol(v, 3)
}

// DumpsProtocol serializes v the way pickle.dumps does for protocol 3, 4 or 5.
// From protocol 4 the body is framed, globals use STACK_GLOBAL and strings and
// globals are memoized. From protocol 5 numeric arrays are reduced through
// numpy's _frombuffer with an in-band bytearray buffer.
func DumpsProtocol(v interface{}, protocol int) []byte {
	if protocol < 3 || protocol > 5 {
		panic(fmt.Sprintf("pickletest: unsupported protocol %d", protocol))
	}
	w := &writer{protocol: protocol}
	w.write(v)
	w.buf.WriteByte('.')

	var out bytes.Buffer
	out.Write([]byte{0x80, byte(protocol)})
	if protocol >= 4 {
		// FRAME with the whole body, STOP included
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(w.buf.Len()))
		out.WriteByte(0x95)
		out.Write(n[:])
	}
	out.Write(w.buf.Bytes())
	return out.Bytes()
}

type writer struct {
	buf      bytes.Buffer
	protocol int
}

func (w *writer) memoize() {
	if w.protocol >= 4 {
		w.buf.WriteByte(0x94)
	}
}

func (w *writer) write(v interface{}) {
	buf := &w.buf
	switch x := v.(type) {
	case nil:
		buf.WriteByte('N')
	case bool:
		if x {
			buf.WriteByte(0x88)
		} else {
			buf.WriteByte(0x89)
		}
	case int:
		writeInt(buf, int64(x))
	case int64:
		writeInt(buf, x)
	case float64:
		buf.WriteByte('G')
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(x))
		buf.Write(b[:])
	case string:
		if w.protocol >= 4 && len(x) < 256 {
			buf.Write([]byte{0x8c, byte(len(x))})
		} else {
			buf.WriteByte('X')
			writeLen(buf, len(x))
		}
		buf.WriteString(x)
		w.memoize()
	case []byte:
		buf.WriteByte('B')
		writeLen(buf, len(x))
		buf.Write(x)
	case ByteArray:
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(x)))
		buf.WriteByte(0x96)
		buf.Write(n[:])
		buf.Write(x)
	case Global:
		if w.protocol >= 4 {
			w.write(x.Module)
			w.write(x.Name)
			buf.WriteByte(0x93)
			w.memoize()
			return
		}
		fmt.Fprintf(buf, "c%s\n%s\n", x.Module, x.Name)
	case Tuple:
		if len(x) == 0 {
			buf.WriteByte(')')
			return
		}
		buf.WriteByte('(')
		for _, item := range x {
			w.write(item)
		}
		buf.WriteByte('t')
	case List:
		buf.WriteByte(']')
		if len(x) == 0 {
			return
		}
		buf.WriteByte('(')
		for _, item := range x {
			w.write(item)
		}
		buf.WriteByte('e')
	case Dict:
		buf.WriteByte('}')
		if len(x) == 0 {
			return
		}
		buf.WriteByte('(')
		for _, item := range x {
			w.write(item.Key)
			w.write(item.Value)
		}
		buf.WriteByte('u')
	case Reduce:
		if w.protocol >= 5 {
			if fb, ok := frombuffer(x); ok {
				x = fb
			}
		}
		w.write(x.Callable)
		w.write(x.Args)
		buf.WriteByte('R')
		if x.State != nil {
			w.write(x.State)
			buf.WriteByte('b')
		}
	case Object:
		w.write(x.Class)
		buf.WriteByte(')')
		buf.WriteByte(0x81)
		if x.State != nil {
			w.write(x.State)
			buf.WriteByte('b')
		}
	default:
		panic(fmt.Sprintf("pickletest: unsupported value %T", v))
	}
}

func writeInt(buf *bytes.Buffer, v int64) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		buf.WriteByte('J')
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
		buf.Write(b[:])
		return
	}
	// LONG1: little-endian two's complement
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write([]byte{0x8a, 8})
	buf.Write(b[:])
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}
