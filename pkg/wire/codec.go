package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxPayloadSize is the largest encoded PropArray (u16 framed).
const MaxPayloadSize = 0xffff

// Codec errors.
var (
	// ErrTruncated indicates a declared length runs past the end of the buffer.
	ErrTruncated = errors.New("wire: truncated payload")

	// ErrUnknownType indicates a tag with an unsupported value type.
	ErrUnknownType = errors.New("wire: unknown value type")

	// ErrMalformedArray indicates inconsistent array header fields.
	ErrMalformedArray = errors.New("wire: malformed array")

	// ErrTrailingData indicates bytes left over after the last property.
	ErrTrailingData = errors.New("wire: trailing data")

	// ErrPayloadTooLarge indicates an encoding beyond MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)

var le = binary.LittleEndian

// MarshalPropArray encodes a PropArray.
func MarshalPropArray(a PropArray) ([]byte, error) {
	return AppendPropArray(nil, a)
}

// AppendPropArray appends the encoding of a to dst.
//
// A property whose payload cannot be represented (oversize, or a value that
// does not match its tag type) is written as an error property instead, so
// the rest of the array stays decodable.
func AppendPropArray(dst []byte, a PropArray) ([]byte, error) {
	if a.Len() == 0 {
		return dst, nil
	}
	if a.Len() > math.MaxUint16 {
		return dst, fmt.Errorf("%w: %d properties", ErrPayloadTooLarge, a.Len())
	}
	start := len(dst)
	dst = le.AppendUint16(dst, uint16(a.Len()))
	for _, p := range a.props {
		dst = appendProperty(dst, p)
	}
	if n := len(dst) - start; n > MaxPayloadSize {
		return dst[:start], fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	return dst, nil
}

// errorPropSize is the encoded size of an error property.
const errorPropSize = 5

// FitPropArray returns a with its largest values replaced by NO_ALLOC error
// properties until the encoding fits into MaxPayloadSize. The second result
// reports whether anything was replaced. An array with more properties than
// a payload can count is returned unchanged.
func FitPropArray(a PropArray) (PropArray, bool) {
	sizes := make([]int, len(a.props))
	total := 2
	for i, p := range a.props {
		sizes[i] = len(appendProperty(nil, p))
		total += sizes[i]
	}
	if total <= MaxPayloadSize || len(a.props) > math.MaxUint16 {
		return a, false
	}

	out := a.Clone()
	for total > MaxPayloadSize {
		largest := -1
		for i, n := range sizes {
			if n > errorPropSize && (largest < 0 || n > sizes[largest]) {
				largest = i
			}
		}
		if largest < 0 {
			break
		}
		out.props[largest] = NewError(out.props[largest].Tag, StatusNoAlloc)
		total -= sizes[largest] - errorPropSize
		sizes[largest] = errorPropSize
	}
	return out, true
}

func appendError(dst []byte, t Tag, s Status) []byte {
	dst = le.AppendUint32(dst, uint32(t|FlagError))
	return append(dst, byte(s.WireByte()))
}

func appendProperty(dst []byte, p Property) []byte {
	if p.IsError() {
		return appendError(dst, p.Tag, p.Err())
	}
	if p.Value == nil {
		return appendError(dst, p.Tag, StatusUnsupported)
	}

	if p.Tag.IsArray() {
		arr, ok := p.Value.(Array)
		if !ok {
			return appendError(dst, p.Tag, StatusUnsupported)
		}
		total := 6 + len(arr.Data)
		if total > math.MaxUint16 || arr.ElemSize < 0 || arr.ElemSize > math.MaxUint16 {
			return appendError(dst, p.Tag, StatusNoAlloc)
		}
		if arr.ElemSize == 0 && len(arr.Data) != 0 || arr.ElemSize != 0 && len(arr.Data)%arr.ElemSize != 0 {
			return appendError(dst, p.Tag, StatusUnsupported)
		}
		dst = le.AppendUint32(dst, uint32(p.Tag))
		dst = le.AppendUint16(dst, uint16(total))
		dst = le.AppendUint16(dst, uint16(arr.Len()))
		dst = le.AppendUint16(dst, uint16(arr.ElemSize))
		dst = le.AppendUint16(dst, uint16(arr.ElemType))
		return append(dst, arr.Data...)
	}

	if p.Value.Type() != p.Tag.Type() {
		return appendError(dst, p.Tag, StatusUnsupported)
	}

	switch v := p.Value.(type) {
	case String:
		if len(v) > math.MaxUint16 {
			return appendError(dst, p.Tag, StatusNoAlloc)
		}
		dst = le.AppendUint32(dst, uint32(p.Tag))
		dst = le.AppendUint16(dst, uint16(len(v)))
		return append(dst, v...)
	case Binary:
		if len(v) > math.MaxUint16 {
			return appendError(dst, p.Tag, StatusNoAlloc)
		}
		dst = le.AppendUint32(dst, uint32(p.Tag))
		dst = le.AppendUint16(dst, uint16(len(v)))
		return append(dst, v...)
	}

	dst = le.AppendUint32(dst, uint32(p.Tag))
	switch v := p.Value.(type) {
	case Int32:
		dst = le.AppendUint32(dst, uint32(v))
	case Int16:
		dst = le.AppendUint16(dst, uint16(v))
	case Int8:
		dst = append(dst, byte(v))
	case Uint32:
		dst = le.AppendUint32(dst, uint32(v))
	case Uint16:
		dst = le.AppendUint16(dst, uint16(v))
	case Uint8:
		dst = append(dst, byte(v))
	case Bool:
		if v {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case Float:
		dst = le.AppendUint32(dst, math.Float32bits(float32(v)))
	case DateTime:
		dst = le.AppendUint32(dst, uint32(v))
	case UniqueID:
		dst = append(dst, v[:]...)
	}
	return dst
}

// decoder walks a payload with bounds checks.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.off < n {
		return nil, ErrTruncated
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return le.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return le.Uint32(b), nil
}

// UnmarshalPropArray decodes a PropArray. Any malformed property fails the
// whole array; no partial result is returned.
func UnmarshalPropArray(data []byte) (PropArray, error) {
	var a PropArray
	if len(data) == 0 {
		return a, nil
	}
	d := &decoder{buf: data}
	count, err := d.u16()
	if err != nil {
		return PropArray{}, err
	}
	for i := 0; i < int(count); i++ {
		p, err := d.property()
		if err != nil {
			return PropArray{}, fmt.Errorf("property %d: %w", i, err)
		}
		a.Set(p)
	}
	if d.off != len(data) {
		return PropArray{}, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-d.off)
	}
	return a, nil
}

func (d *decoder) property() (Property, error) {
	raw, err := d.u32()
	if err != nil {
		return Property{}, err
	}
	t := Tag(raw)

	if t.IsError() {
		b, err := d.take(1)
		if err != nil {
			return Property{}, err
		}
		return Property{Tag: t, Value: ErrorValue(int8(b[0]))}, nil
	}

	if t.IsArray() {
		hdr, err := d.take(8)
		if err != nil {
			return Property{}, err
		}
		total := int(le.Uint16(hdr[0:]))
		n := int(le.Uint16(hdr[2:]))
		size := int(le.Uint16(hdr[4:]))
		elem := Type(le.Uint16(hdr[6:]))
		if total != 6+n*size {
			return Property{}, ErrMalformedArray
		}
		body, err := d.take(n * size)
		if err != nil {
			return Property{}, err
		}
		return Property{Tag: t, Value: Array{ElemType: elem, ElemSize: size, Data: append([]byte(nil), body...)}}, nil
	}

	typ := t.Type()
	switch typ {
	case TypeString, TypeBinary:
		n, err := d.u16()
		if err != nil {
			return Property{}, err
		}
		body, err := d.take(int(n))
		if err != nil {
			return Property{}, err
		}
		if typ == TypeString {
			return Property{Tag: t, Value: String(body)}, nil
		}
		return Property{Tag: t, Value: Binary(append([]byte(nil), body...))}, nil
	}

	size := typ.Size()
	if size == 0 {
		return Property{}, fmt.Errorf("%w: 0x%x", ErrUnknownType, uint16(typ))
	}
	b, err := d.take(size)
	if err != nil {
		return Property{}, err
	}
	var v Value
	switch typ {
	case TypeInt32:
		v = Int32(le.Uint32(b))
	case TypeInt16:
		v = Int16(le.Uint16(b))
	case TypeInt8:
		v = Int8(b[0])
	case TypeUint32:
		v = Uint32(le.Uint32(b))
	case TypeUint16:
		v = Uint16(le.Uint16(b))
	case TypeUint8:
		v = Uint8(b[0])
	case TypeBool:
		v = Bool(b[0] != 0)
	case TypeFloat:
		v = Float(math.Float32frombits(le.Uint32(b)))
	case TypeDateTime:
		v = DateTime(le.Uint32(b))
	case TypeUUID:
		var id UniqueID
		copy(id[:], b)
		v = id
	}
	return Property{Tag: t, Value: v}, nil
}

// MarshalTagArray encodes a TagArray as u16 count followed by u32 tags.
func MarshalTagArray(ta TagArray) []byte {
	out := make([]byte, 0, 2+4*len(ta))
	out = le.AppendUint16(out, uint16(len(ta)))
	for _, t := range ta {
		out = le.AppendUint32(out, uint32(t))
	}
	return out
}

// UnmarshalTagArray decodes a TagArray and returns the bytes consumed.
func UnmarshalTagArray(data []byte) (TagArray, int, error) {
	d := &decoder{buf: data}
	n, err := d.u16()
	if err != nil {
		return nil, 0, err
	}
	ta := make(TagArray, 0, n)
	for i := 0; i < int(n); i++ {
		t, err := d.u32()
		if err != nil {
			return nil, 0, err
		}
		ta = append(ta, Tag(t))
	}
	return ta, d.off, nil
}
