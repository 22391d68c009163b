package wire

import "fmt"

// Type is the value type held in the low bits of a Tag.
type Type uint16

// Value types.
const (
	TypeInvalid  Type = 0x0
	TypeInt32    Type = 0x1
	TypeInt16    Type = 0x2
	TypeInt8     Type = 0x3
	TypeUint32   Type = 0x4
	TypeUint16   Type = 0x5
	TypeUint8    Type = 0x6
	TypeBool     Type = 0x7
	TypeUUID     Type = 0x8
	TypeFloat    Type = 0x9
	TypeDateTime Type = 0xA
	TypeBinary   Type = 0xC
	TypeString   Type = 0xE
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "INT32"
	case TypeInt16:
		return "INT16"
	case TypeInt8:
		return "INT8"
	case TypeUint32:
		return "UINT32"
	case TypeUint16:
		return "UINT16"
	case TypeUint8:
		return "UINT8"
	case TypeBool:
		return "BOOL"
	case TypeUUID:
		return "UUID"
	case TypeFloat:
		return "FLOAT"
	case TypeDateTime:
		return "DATETIME"
	case TypeBinary:
		return "BIN"
	case TypeString:
		return "STRING"
	default:
		return "INVALID"
	}
}

// Size returns the encoded width of a fixed-size type, or 0 for
// variable-length and unknown types.
func (t Type) Size() int {
	switch t {
	case TypeInt8, TypeUint8, TypeBool:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat, TypeDateTime:
		return 4
	case TypeUUID:
		return 16
	default:
		return 0
	}
}

// IsValid reports whether t is a known value type.
func (t Type) IsValid() bool {
	switch t {
	case TypeInt32, TypeInt16, TypeInt8, TypeUint32, TypeUint16, TypeUint8,
		TypeBool, TypeUUID, TypeFloat, TypeDateTime, TypeBinary, TypeString:
		return true
	}
	return false
}

// Tag identifies a property: id in the upper 16 bits, flags and type below.
type Tag uint32

// Tag flags.
const (
	FlagError      Tag = 0x0100
	FlagArray      Tag = 0x0200
	FlagReadOnly   Tag = 0x1000
	FlagActionable Tag = 0x2000
	FlagVolatile   Tag = 0x4000

	typeMask  Tag = 0x00ff
	flagsMask Tag = 0xf000
)

// TagError is the tag of the sentinel returned for absent properties.
const TagError = FlagError

// MaxBaseID is the first id outside the base property range.
const MaxBaseID = 0x200

// MakeTag builds a tag from its parts.
func MakeTag(id uint16, typ Type, flags Tag) Tag {
	return Tag(id)<<16 | flags&(flagsMask|FlagError|FlagArray) | Tag(typ)&typeMask
}

// NormalizeTag converts a user-supplied tag or bare id into a tag carrying
// only id and flags. Values above 0xffff are treated as full tags, smaller
// values as bare ids whose top nibble also lands in the flags.
func NormalizeTag(t uint32) Tag {
	if t > 0xffff {
		return Tag(t>>16)<<16 | Tag(t)&flagsMask
	}
	return Tag(t)<<16 | Tag(t)&flagsMask
}

// ID returns the property id.
func (t Tag) ID() uint16 { return uint16(t >> 16) }

// Type returns the value type (element type for arrays).
func (t Tag) Type() Type { return Type(t & typeMask) }

// Flags returns the ReadOnly/Actionable/Volatile bits.
func (t Tag) Flags() Tag { return t & flagsMask }

// IsError reports whether the tag marks an error property.
func (t Tag) IsError() bool { return t&FlagError != 0 }

// IsArray reports whether the tag marks an array property.
func (t Tag) IsArray() bool { return t&FlagArray != 0 }

// IsReadOnly reports whether the property is read-only.
func (t Tag) IsReadOnly() bool { return t&FlagReadOnly != 0 }

// IsActionable reports whether the property is actionable.
func (t Tag) IsActionable() bool { return t&FlagActionable != 0 }

// IsVolatile reports whether the property is volatile.
func (t Tag) IsVolatile() bool { return t&FlagVolatile != 0 }

// IsBase reports whether the tag is in the base property range.
func (t Tag) IsBase() bool { return t.ID() < MaxBaseID }

// SameID reports whether both tags name the same property.
func (t Tag) SameID(o Tag) bool { return t.ID() == o.ID() }

// WithType returns the tag with its value type replaced.
func (t Tag) WithType(typ Type) Tag {
	return t&^typeMask | Tag(typ)&typeMask
}

// AsError returns the tag with the error flag set.
func (t Tag) AsError() Tag { return t | FlagError }

// String formats the tag as hex with its type.
func (t Tag) String() string {
	s := fmt.Sprintf("0x%08x(%s", uint32(t), t.Type())
	if t.IsArray() {
		s += "[]"
	}
	if t.IsError() {
		s += ",ERR"
	}
	return s + ")"
}

// Base properties.
const (
	TagObjectType           = Tag(0x0001)<<16 | FlagReadOnly | Tag(TypeUUID)
	TagObjectAddr           = Tag(0x0002)<<16 | FlagReadOnly | Tag(TypeUint16)
	TagBroadcastAddr        = Tag(0x0003)<<16 | FlagReadOnly | Tag(TypeUint16)
	TagMessageName          = Tag(0x0004)<<16 | Tag(TypeString)
	TagChildrenTable        = Tag(0x0005)<<16 | Tag(TypeBinary)
	TagColumnSet            = Tag(0x0006)<<16 | FlagArray | Tag(TypeUint16)
	TagLastModificationTime = Tag(0x0007)<<16 | Tag(TypeDateTime)
	TagCreationTime         = Tag(0x0008)<<16 | Tag(TypeDateTime)
	TagObjectTable          = Tag(0x000D)<<16 | Tag(TypeBinary)
	TagPropTag              = Tag(0x000F)<<16 | Tag(TypeUint32)
	TagPropName             = Tag(0x0010)<<16 | Tag(TypeString)
	TagPropType             = Tag(0x0011)<<16 | Tag(TypeUint16)
	TagPropMappings         = Tag(0x0012)<<16 | FlagReadOnly | FlagArray | Tag(TypeBinary)
	TagRequiresAuth         = Tag(0x0018)<<16 | Tag(TypeBool)
	TagIndicationTimeout    = Tag(0x0020)<<16 | Tag(TypeUint32)
	TagAuthType             = Tag(0x0031)<<16 | FlagReadOnly | Tag(TypeUint8)
	TagAuthUser             = Tag(0x0032)<<16 | FlagReadOnly | Tag(TypeString)
	TagAuthPass             = Tag(0x0033)<<16 | FlagReadOnly | Tag(TypeString)
	TagSignAlgo             = Tag(0x0034)<<16 | FlagReadOnly | Tag(TypeString)
	TagSignHash             = Tag(0x0035)<<16 | FlagReadOnly | Tag(TypeBinary)
	TagSignature            = Tag(0x0036)<<16 | FlagReadOnly | Tag(TypeBinary)
	TagObjectUUID           = Tag(0x0100)<<16 | FlagReadOnly | Tag(TypeUUID)
	TagObjectTypeName       = Tag(0x0101)<<16 | FlagReadOnly | Tag(TypeString)
)

// AuthType selects the authentication handshake.
type AuthType uint8

const (
	// AuthNone means no authentication is required.
	AuthNone AuthType = 0

	// AuthSignature answers a challenge with a signature.
	AuthSignature AuthType = 1

	// AuthInteractive exchanges credentials supplied by the application.
	AuthInteractive AuthType = 2
)

// String returns the auth type name.
func (a AuthType) String() string {
	switch a {
	case AuthNone:
		return "NONE"
	case AuthSignature:
		return "SIGNATURE"
	case AuthInteractive:
		return "INTERACTIVE"
	default:
		return "UNKNOWN"
	}
}
