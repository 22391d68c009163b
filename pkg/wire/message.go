package wire

import "fmt"

// MessageType is the first byte of every frame.
type MessageType uint8

// Requests (peer to object).
const (
	MsgConnect        MessageType = 0x01
	MsgDisconnect     MessageType = 0x02
	MsgCreateObject   MessageType = 0x03
	MsgQueryObjects   MessageType = 0x04
	MsgDestroyObject  MessageType = 0x05
	MsgCreateProperty MessageType = 0x06
	MsgSetProperties  MessageType = 0x07
	MsgGetProperties  MessageType = 0x08
	MsgJoinGroup      MessageType = 0x09
	MsgLeaveGroup     MessageType = 0x0A
	MsgCustom         MessageType = 0x0B
	MsgOpenProperty   MessageType = 0x0C
	MsgDeleteProperty MessageType = 0x0D
	MsgDeleteObject   MessageType = 0x0E
)

// Indications (object to peer).
const (
	MsgObjectCreated     MessageType = 0x13
	MsgDestroyed         MessageType = 0x15
	MsgPropertyCreated   MessageType = 0x16
	MsgSetPropertiesReq  MessageType = 0x17
	MsgGetPropertiesReq  MessageType = 0x18
	MsgJoined            MessageType = 0x19
	MsgLeft              MessageType = 0x1A
	MsgCustomMsgReceived MessageType = 0x1B
	MsgPropertyDeleted   MessageType = 0x1D
	MsgObjectDeleted     MessageType = 0x1E
	MsgChanged           MessageType = 0x1F
)

// Control messages.
const (
	MsgSeek        MessageType = 0x22
	MsgSaveChanges MessageType = 0x23
	MsgConfigure   MessageType = 0x24
	MsgPing        MessageType = 0x30
	MsgAuth        MessageType = 0x31
)

// confirmationBit marks a confirmation of the message type in the low bits.
const confirmationBit MessageType = 0x80

var messageNames = map[MessageType]string{
	MsgConnect:           "connect",
	MsgDisconnect:        "disconnect",
	MsgCreateObject:      "createObject",
	MsgQueryObjects:      "queryObjects",
	MsgDestroyObject:     "destroyObject",
	MsgCreateProperty:    "createProperty",
	MsgSetProperties:     "setProperties",
	MsgGetProperties:     "getProperties",
	MsgJoinGroup:         "joinGroup",
	MsgLeaveGroup:        "leaveGroup",
	MsgCustom:            "custom",
	MsgOpenProperty:      "openProperty",
	MsgDeleteProperty:    "deleteProperty",
	MsgDeleteObject:      "deleteObject",
	MsgObjectCreated:     "objectCreated",
	MsgDestroyed:         "destroyed",
	MsgPropertyCreated:   "propertyCreated",
	MsgSetPropertiesReq:  "setPropertiesReq",
	MsgGetPropertiesReq:  "getPropertiesReq",
	MsgJoined:            "joined",
	MsgLeft:              "left",
	MsgCustomMsgReceived: "customMsgReceived",
	MsgPropertyDeleted:   "propertyDeleted",
	MsgObjectDeleted:     "objectDeleted",
	MsgChanged:           "changed",
	MsgSeek:              "seek",
	MsgSaveChanges:       "saveChanges",
	MsgConfigure:         "configure",
	MsgPing:              "ping",
	MsgAuth:              "auth",
}

// String returns the message name; confirmations get a ".conf" suffix.
func (m MessageType) String() string {
	name, ok := messageNames[m.Base()]
	if !ok {
		return fmt.Sprintf("unknown(0x%02x)", uint8(m))
	}
	if m.IsConfirmation() {
		return name + ".conf"
	}
	return name
}

// Base strips the confirmation bit.
func (m MessageType) Base() MessageType { return m &^ confirmationBit }

// Confirmation returns the confirmation type answering m.
func (m MessageType) Confirmation() MessageType { return m | confirmationBit }

// IsConfirmation reports whether m answers an earlier message.
func (m MessageType) IsConfirmation() bool { return m&confirmationBit != 0 }

// IsValid reports whether the base type is known.
func (m MessageType) IsValid() bool {
	_, ok := messageNames[m.Base()]
	return ok
}

// IsRequest reports whether m is a peer-to-object request.
func (m MessageType) IsRequest() bool {
	return !m.IsConfirmation() && m >= MsgConnect && m <= MsgDeleteObject
}

// IsIndication reports whether m is an object-to-peer indication.
func (m MessageType) IsIndication() bool {
	return !m.IsConfirmation() && m >= MsgObjectCreated && m <= MsgChanged && m.IsValid()
}

// IsControl reports whether m is a control message.
func (m MessageType) IsControl() bool {
	switch m {
	case MsgSeek, MsgSaveChanges, MsgConfigure, MsgPing, MsgAuth:
		return true
	}
	return false
}

// IsBroadcast reports whether m is a fan-out indication that is never
// acknowledged.
func (m MessageType) IsBroadcast() bool {
	switch m {
	case MsgObjectCreated, MsgPropertyCreated, MsgJoined, MsgLeft, MsgChanged, MsgDestroyed:
		return true
	}
	return false
}

// ExpectsAnswer reports whether the receiver must confirm m.
func (m MessageType) ExpectsAnswer() bool {
	if m.IsConfirmation() {
		return false
	}
	return m.IsRequest() || m.IsControl() || (m.IsIndication() && !m.IsBroadcast())
}

// HasToken reports whether frames of type m carry a token.
func (m MessageType) HasToken() bool {
	return m.IsConfirmation() || m.ExpectsAnswer()
}

// Addr is an object address. EmptyAddr is the broadcast/"no address" value.
type Addr uint16

// Reserved addresses.
const (
	// EmptyAddr is address 0.
	EmptyAddr Addr = 0

	// RouterAddr addresses the router itself.
	RouterAddr Addr = 0

	// AnnounceAddr is the group told about every objectCreated and
	// destroyed.
	AnnounceAddr Addr = 0xffff
)

// String formats the address as hex.
func (a Addr) String() string { return fmt.Sprintf("0x%04x", uint16(a)) }

// Token correlates a confirmation with the message it answers.
type Token uint16
