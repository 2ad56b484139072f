// Package wire implements the Cast V2 binary frame: the length-prefixed
// CastMessage protobuf schema and the minimal DeviceAuthMessage used for
// the authentication handshake. Both types hand-encode the wire format
// with google.golang.org/protobuf/encoding/protowire rather than a
// protoc-generated package, since the actual .proto schema is treated as
// an external collaborator (see the purpose/scope section of the spec
// this module implements).
package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolVersion identifies the Cast wire protocol revision carried by
// every CastMessage.
type ProtocolVersion int32

// CastV2_1_0 is the only protocol version in active use.
const CastV2_1_0 ProtocolVersion = 0

// PayloadType selects which of PayloadUTF8 / PayloadBinary is populated.
type PayloadType int32

const (
	PayloadTypeString PayloadType = 0
	PayloadTypeBinary PayloadType = 1
)

// Well-known namespaces, as enumerated by the Cast V2 wire protocol.
const (
	NamespaceConnection = "urn:x-cast:com.google.cast.tp.connection"
	NamespaceHeartbeat  = "urn:x-cast:com.google.cast.tp.heartbeat"
	NamespaceDeviceAuth = "urn:x-cast:com.google.cast.tp.deviceauth"
	NamespaceReceiver   = "urn:x-cast:com.google.cast.receiver"
	NamespaceMedia      = "urn:x-cast:com.google.cast.media"
)

// DefaultReceiverID is the fixed destination id of the receiver platform
// that every device exposes.
const DefaultReceiverID = "receiver-0"

// CastMessage mirrors the public Cast protobuf schema field-for-field:
//
//	1 protocol_version  varint
//	2 source_id         string
//	3 destination_id    string
//	4 namespace         string
//	5 payload_type      varint
//	6 payload_utf8      string
//	7 payload_binary    bytes
//
// Exactly one of PayloadUTF8 / PayloadBinary is meaningful, selected by
// PayloadType.
type CastMessage struct {
	ProtocolVersion ProtocolVersion
	SourceID        string
	DestinationID   string
	Namespace       string
	PayloadType     PayloadType
	PayloadUTF8     string
	PayloadBinary   []byte
}

// Marshal serializes m to its protobuf wire representation.
func (m *CastMessage) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ProtocolVersion))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.SourceID)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, m.DestinationID)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, m.Namespace)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.PayloadType))
	switch m.PayloadType {
	case PayloadTypeString:
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, m.PayloadUTF8)
	case PayloadTypeBinary:
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, m.PayloadBinary)
	}
	return b, nil
}

// Unmarshal decodes b into m, skipping any field numbers it does not
// recognize so forward-compatible messages from newer devices survive a
// round trip through passthrough code paths.
func (m *CastMessage) Unmarshal(b []byte) error {
	*m = CastMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ProtocolVersion = ProtocolVersion(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.SourceID = v
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.DestinationID = v
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Namespace = v
			b = b[n:]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.PayloadType = PayloadType(v)
			b = b[n:]
		case 6:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.PayloadUTF8 = v
			b = b[n:]
		case 7:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.PayloadBinary = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// DeviceAuthMessage is the binary payload exchanged on NamespaceDeviceAuth.
// Field layout mirrors the public schema:
//
//	1 challenge  message (empty on the outbound request)
//	2 response   message (ignored — this client never inspects it)
//	3 error      message { 1: error_type varint }
type DeviceAuthMessage struct {
	HasChallenge bool
	HasError     bool
	ErrorType    int32
}

// Marshal serializes m. The outbound auth request carries an empty
// challenge sub-message, matching what a real Cast sender sends to start
// the handshake; a device reply that rejects the handshake instead
// carries an error sub-message (field 3) with its error_type (field 1),
// omitting the challenge field entirely.
func (m *DeviceAuthMessage) Marshal() ([]byte, error) {
	var b []byte
	if m.HasError {
		var errMsg []byte
		errMsg = protowire.AppendTag(errMsg, 1, protowire.VarintType)
		errMsg = protowire.AppendVarint(errMsg, uint64(m.ErrorType))
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, errMsg)
		return b, nil
	}
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)
	return b, nil
}

// Unmarshal decodes an inbound DeviceAuthMessage, recording whether the
// device returned an AuthError.
func (m *DeviceAuthMessage) Unmarshal(b []byte) error {
	*m = DeviceAuthMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.HasChallenge = true
			b = b[n:]
			_ = v
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.HasError = true
			if errType, ok := consumeErrorType(v); ok {
				m.ErrorType = errType
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// consumeErrorType extracts the error_type varint (field 1) from an
// AuthError sub-message, if present.
func consumeErrorType(b []byte) (int32, bool) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, false
		}
		b = b[n:]
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, false
			}
			return int32(v), true
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, false
		}
		b = b[n:]
	}
	return 0, false
}
