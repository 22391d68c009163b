package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// FloatEpsilon is the tolerance used when comparing float properties.
const FloatEpsilon = 1e-6

// Value is the payload of a Property. The set of implementations is closed;
// switch on the concrete type to handle each kind.
type Value interface {
	// Type returns the value type, TypeInvalid for ErrorValue.
	Type() Type
	isValue()
}

// Scalar values.
type (
	Int32    int32
	Int16    int16
	Int8     int8
	Uint32   uint32
	Uint16   uint16
	Uint8    uint8
	Bool     bool
	Float    float32
	DateTime uint32 // unix seconds
	Binary   []byte
	String   string
)

// ErrorValue is the payload of an error property.
type ErrorValue Status

// Array is a homogeneous array of fixed-size elements stored contiguously.
type Array struct {
	ElemType Type
	ElemSize int
	Data     []byte
}

func (Int32) Type() Type      { return TypeInt32 }
func (Int16) Type() Type      { return TypeInt16 }
func (Int8) Type() Type       { return TypeInt8 }
func (Uint32) Type() Type     { return TypeUint32 }
func (Uint16) Type() Type     { return TypeUint16 }
func (Uint8) Type() Type      { return TypeUint8 }
func (Bool) Type() Type       { return TypeBool }
func (Float) Type() Type      { return TypeFloat }
func (DateTime) Type() Type   { return TypeDateTime }
func (Binary) Type() Type     { return TypeBinary }
func (String) Type() Type     { return TypeString }
func (UniqueID) Type() Type   { return TypeUUID }
func (ErrorValue) Type() Type { return TypeInvalid }
func (a Array) Type() Type    { return a.ElemType }

func (Int32) isValue()      {}
func (Int16) isValue()      {}
func (Int8) isValue()       {}
func (Uint32) isValue()     {}
func (Uint16) isValue()     {}
func (Uint8) isValue()      {}
func (Bool) isValue()       {}
func (Float) isValue()      {}
func (DateTime) isValue()   {}
func (Binary) isValue()     {}
func (String) isValue()     {}
func (UniqueID) isValue()   {}
func (ErrorValue) isValue() {}
func (Array) isValue()      {}

// Len returns the number of elements.
func (a Array) Len() int {
	if a.ElemSize == 0 {
		return 0
	}
	return len(a.Data) / a.ElemSize
}

// Uint16s decodes the elements of a uint16 array.
func (a Array) Uint16s() []uint16 {
	if a.ElemSize != 2 {
		return nil
	}
	out := make([]uint16, a.Len())
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(a.Data[i*2:])
	}
	return out
}

// Uint32s decodes the elements of a uint32 array.
func (a Array) Uint32s() []uint32 {
	if a.ElemSize != 4 {
		return nil
	}
	out := make([]uint32, a.Len())
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(a.Data[i*4:])
	}
	return out
}

// Time converts the datetime to a time.Time.
func (d DateTime) Time() time.Time { return time.Unix(int64(d), 0).UTC() }

// Property is one tagged value.
type Property struct {
	Tag   Tag
	Value Value
}

// NotFound is the sentinel returned by PropArray.Get for absent properties.
var NotFound = Property{Tag: TagError, Value: ErrorValue(StatusNotFound)}

func typed(t Tag, typ Type) Tag {
	return NormalizeTag(uint32(t)) | Tag(typ)
}

// NewInt32 creates an INT32 property. t may be a full tag or a bare id.
func NewInt32(t Tag, v int32) Property {
	return Property{Tag: typed(t, TypeInt32), Value: Int32(v)}
}

// NewInt16 creates an INT16 property.
func NewInt16(t Tag, v int16) Property {
	return Property{Tag: typed(t, TypeInt16), Value: Int16(v)}
}

// NewInt8 creates an INT8 property.
func NewInt8(t Tag, v int8) Property {
	return Property{Tag: typed(t, TypeInt8), Value: Int8(v)}
}

// NewUint32 creates a UINT32 property.
func NewUint32(t Tag, v uint32) Property {
	return Property{Tag: typed(t, TypeUint32), Value: Uint32(v)}
}

// NewUint16 creates a UINT16 property.
func NewUint16(t Tag, v uint16) Property {
	return Property{Tag: typed(t, TypeUint16), Value: Uint16(v)}
}

// NewUint8 creates a UINT8 property.
func NewUint8(t Tag, v uint8) Property {
	return Property{Tag: typed(t, TypeUint8), Value: Uint8(v)}
}

// NewBool creates a BOOL property.
func NewBool(t Tag, v bool) Property {
	return Property{Tag: typed(t, TypeBool), Value: Bool(v)}
}

// NewFloat creates a FLOAT property.
func NewFloat(t Tag, v float32) Property {
	return Property{Tag: typed(t, TypeFloat), Value: Float(v)}
}

// NewDateTime creates a DATETIME property with second resolution.
func NewDateTime(t Tag, v time.Time) Property {
	return Property{Tag: typed(t, TypeDateTime), Value: DateTime(uint32(v.Unix()))}
}

// NewUUID creates a UUID property.
func NewUUID(t Tag, v UniqueID) Property {
	return Property{Tag: typed(t, TypeUUID), Value: v}
}

// NewString creates a STRING property.
func NewString(t Tag, v string) Property {
	return Property{Tag: typed(t, TypeString), Value: String(v)}
}

// NewBinary creates a BIN property holding a copy of v.
func NewBinary(t Tag, v []byte) Property {
	return Property{Tag: typed(t, TypeBinary), Value: Binary(bytes.Clone(v))}
}

// NewArray creates an array property from raw element bytes.
func NewArray(t Tag, elem Type, elemSize int, data []byte) Property {
	return Property{
		Tag:   typed(t, elem) | FlagArray,
		Value: Array{ElemType: elem, ElemSize: elemSize, Data: bytes.Clone(data)},
	}
}

// NewUint16Array creates a UINT16 array property.
func NewUint16Array(t Tag, v []uint16) Property {
	data := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(data[i*2:], x)
	}
	return Property{
		Tag:   typed(t, TypeUint16) | FlagArray,
		Value: Array{ElemType: TypeUint16, ElemSize: 2, Data: data},
	}
}

// NewUint32Array creates a UINT32 array property.
func NewUint32Array(t Tag, v []uint32) Property {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(data[i*4:], x)
	}
	return Property{
		Tag:   typed(t, TypeUint32) | FlagArray,
		Value: Array{ElemType: TypeUint32, ElemSize: 4, Data: data},
	}
}

// NewError creates an error property. A full tag keeps its type bits.
func NewError(t Tag, s Status) Property {
	tag := t
	if uint32(t) <= 0xffff {
		tag = NormalizeTag(uint32(t))
	}
	return Property{Tag: tag | FlagError, Value: ErrorValue(s)}
}

// Zero returns a property of the tag's type holding its zero value.
// Used to name the properties wanted in a getProperties request.
func Zero(t Tag) Property {
	if t.IsArray() {
		return Property{Tag: t, Value: Array{ElemType: t.Type(), ElemSize: t.Type().Size()}}
	}
	p := Property{Tag: t}
	switch t.Type() {
	case TypeInt32:
		p.Value = Int32(0)
	case TypeInt16:
		p.Value = Int16(0)
	case TypeInt8:
		p.Value = Int8(0)
	case TypeUint32:
		p.Value = Uint32(0)
	case TypeUint16:
		p.Value = Uint16(0)
	case TypeUint8:
		p.Value = Uint8(0)
	case TypeBool:
		p.Value = Bool(false)
	case TypeFloat:
		p.Value = Float(0)
	case TypeDateTime:
		p.Value = DateTime(0)
	case TypeUUID:
		p.Value = NilID
	case TypeBinary:
		p.Value = Binary(nil)
	case TypeString:
		p.Value = String("")
	default:
		return NewError(t, StatusUnsupported)
	}
	return p
}

// IsError reports whether the property carries an error instead of a value.
func (p Property) IsError() bool {
	return p.Tag.IsError()
}

// Err returns the carried status for error properties and StatusOK otherwise.
func (p Property) Err() Status {
	if ev, ok := p.Value.(ErrorValue); ok {
		return Status(ev)
	}
	if p.IsError() {
		return StatusFailed
	}
	return StatusOK
}

// Equal compares tag and payload. Error properties compare by status only.
func (p Property) Equal(o Property) bool {
	if p.IsError() || o.IsError() {
		return p.IsError() && o.IsError() && p.Err() == o.Err()
	}
	if p.Tag != o.Tag {
		return false
	}
	switch a := p.Value.(type) {
	case Float:
		b, ok := o.Value.(Float)
		return ok && math.Abs(float64(a)-float64(b)) < FloatEpsilon
	case Binary:
		b, ok := o.Value.(Binary)
		return ok && bytes.Equal(a, b)
	case Array:
		b, ok := o.Value.(Array)
		return ok && a.ElemType == b.ElemType && a.ElemSize == b.ElemSize && bytes.Equal(a.Data, b.Data)
	case nil:
		return o.Value == nil
	default:
		return p.Value == o.Value
	}
}

// AsInt returns integer and boolean values widened to int64.
func (p Property) AsInt() (int64, bool) {
	switch v := p.Value.(type) {
	case Int32:
		return int64(v), true
	case Int16:
		return int64(v), true
	case Int8:
		return int64(v), true
	case Uint32:
		return int64(v), true
	case Uint16:
		return int64(v), true
	case Uint8:
		return int64(v), true
	case Bool:
		if v {
			return 1, true
		}
		return 0, true
	case DateTime:
		return int64(v), true
	}
	return 0, false
}

// AsFloat returns numeric values as float64.
func (p Property) AsFloat() (float64, bool) {
	if f, ok := p.Value.(Float); ok {
		return float64(f), true
	}
	i, ok := p.AsInt()
	return float64(i), ok
}

// AsString returns the value of a STRING property.
func (p Property) AsString() (string, bool) {
	s, ok := p.Value.(String)
	return string(s), ok
}

// AsBytes returns the value of a BIN property.
func (p Property) AsBytes() ([]byte, bool) {
	b, ok := p.Value.(Binary)
	return []byte(b), ok
}

// AsBool returns the value of a BOOL property.
func (p Property) AsBool() (bool, bool) {
	b, ok := p.Value.(Bool)
	return bool(b), ok
}

// AsUniqueID returns the value of a UUID property.
func (p Property) AsUniqueID() (UniqueID, bool) {
	id, ok := p.Value.(UniqueID)
	return id, ok
}

// AsAddr returns a UINT16 value as an address.
func (p Property) AsAddr() (Addr, bool) {
	v, ok := p.Value.(Uint16)
	return Addr(v), ok
}

// String formats the property for logs and the CLI.
func (p Property) String() string {
	return fmt.Sprintf("%s=%s", p.Tag, FormatValue(p.Value))
}
