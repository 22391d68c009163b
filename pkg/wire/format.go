package wire

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatValue renders a value for humans.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case Int32:
		return strconv.FormatInt(int64(x), 10)
	case Int16:
		return strconv.FormatInt(int64(x), 10)
	case Int8:
		return strconv.FormatInt(int64(x), 10)
	case Uint32:
		return strconv.FormatUint(uint64(x), 10)
	case Uint16:
		return strconv.FormatUint(uint64(x), 10)
	case Uint8:
		return strconv.FormatUint(uint64(x), 10)
	case Bool:
		return strconv.FormatBool(bool(x))
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case DateTime:
		return x.Time().Format(time.RFC3339)
	case UniqueID:
		return x.String()
	case String:
		return strconv.Quote(string(x))
	case Binary:
		return "0x" + hex.EncodeToString(x)
	case Array:
		return fmt.Sprintf("%s[%d]0x%s", x.ElemType, x.Len(), hex.EncodeToString(x.Data))
	case ErrorValue:
		return "error(" + Status(x).String() + ")"
	}
	return "?"
}

// ParseValue parses text into a value of the given type. Binary values are
// hex, optionally prefixed with 0x; datetimes are RFC 3339 or unix seconds.
func ParseValue(typ Type, s string) (Value, error) {
	switch typ {
	case TypeInt32, TypeInt16, TypeInt8:
		bits := typ.Size() * 8
		n, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return nil, err
		}
		switch typ {
		case TypeInt32:
			return Int32(n), nil
		case TypeInt16:
			return Int16(n), nil
		default:
			return Int8(n), nil
		}
	case TypeUint32, TypeUint16, TypeUint8:
		bits := typ.Size() * 8
		n, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			return nil, err
		}
		switch typ {
		case TypeUint32:
			return Uint32(n), nil
		case TypeUint16:
			return Uint16(n), nil
		default:
			return Uint8(n), nil
		}
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case TypeDateTime:
		if n, err := strconv.ParseUint(s, 10, 32); err == nil {
			return DateTime(n), nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		return DateTime(uint32(t.Unix())), nil
	case TypeUUID:
		id, err := ParseUniqueID(s)
		if err != nil {
			return nil, err
		}
		return id, nil
	case TypeString:
		return String(s), nil
	case TypeBinary:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, err
		}
		return Binary(b), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
}
