// Package protocol defines the link message format exchanged between the
// game server and the proxy.
//
// Messages are binary: a length-prefixed UTF-8 type tag, then the fields the
// type requires. Strings are encoded as a 2-byte big-endian length followed by
// UTF-8 bytes, integers as 8-byte big-endian, booleans as a single byte. Every
// message is a hint only; receivers re-validate against the ban store.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Message types carried over the link.
const (
	// Game server -> proxy.
	TypeBan       = "BAN"
	TypeUnban     = "UNBAN"
	TypeClearAll  = "CLEAR_ALL"
	TypeBanStatus = "BAN_STATUS"

	// Proxy -> game server.
	TypeVelocityUnban    = "VELOCITY_UNBAN"
	TypeVelocityClearAll = "VELOCITY_CLEAR_ALL"
	TypeCheckBan         = "CHECK_BAN"
)

// MaxMessageSize bounds a single link message. Far larger than any legal
// message; guards against garbage frames.
const MaxMessageSize = 1024

var (
	ErrTruncated   = errors.New("protocol: truncated message")
	ErrOversized   = errors.New("protocol: message too large")
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Message is a decoded link message. Fields beyond Type are populated
// depending on the type: SubjectID for everything but the clear-alls,
// ExpiresAt for BAN, IsBanned/TimeLeft for BAN_STATUS.
type Message struct {
	Type      string
	SubjectID uuid.UUID
	ExpiresAt int64 // epoch ms, BAN only
	IsBanned  bool  // BAN_STATUS only
	TimeLeft  int64 // ms, BAN_STATUS only
}

// Ban builds a BAN notification.
func Ban(subject uuid.UUID, expiresAt int64) Message {
	return Message{Type: TypeBan, SubjectID: subject, ExpiresAt: expiresAt}
}

// Unban builds an UNBAN notification.
func Unban(subject uuid.UUID) Message {
	return Message{Type: TypeUnban, SubjectID: subject}
}

// ClearAll builds a CLEAR_ALL notification.
func ClearAll() Message {
	return Message{Type: TypeClearAll}
}

// VelocityUnban builds a proxy-initiated unban request.
func VelocityUnban(subject uuid.UUID) Message {
	return Message{Type: TypeVelocityUnban, SubjectID: subject}
}

// VelocityClearAll builds a proxy-initiated clear-all request.
func VelocityClearAll() Message {
	return Message{Type: TypeVelocityClearAll}
}

// CheckBan builds a ban status request for one subject.
func CheckBan(subject uuid.UUID) Message {
	return Message{Type: TypeCheckBan, SubjectID: subject}
}

// BanStatus builds the response to a CHECK_BAN request.
func BanStatus(subject uuid.UUID, isBanned bool, timeLeftMillis int64) Message {
	return Message{Type: TypeBanStatus, SubjectID: subject, IsBanned: isBanned, TimeLeft: timeLeftMillis}
}

// Marshal serializes the message to its wire form.
func (m Message) Marshal() ([]byte, error) {
	buf := appendString(nil, m.Type)

	switch m.Type {
	case TypeClearAll, TypeVelocityClearAll:
		// type tag only
	case TypeBan:
		buf = appendString(buf, m.SubjectID.String())
		buf = binary.BigEndian.AppendUint64(buf, uint64(m.ExpiresAt))
	case TypeUnban, TypeVelocityUnban, TypeCheckBan:
		buf = appendString(buf, m.SubjectID.String())
	case TypeBanStatus:
		buf = appendString(buf, m.SubjectID.String())
		buf = append(buf, boolByte(m.IsBanned))
		buf = binary.BigEndian.AppendUint64(buf, uint64(m.TimeLeft))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return buf, nil
}

// Unmarshal parses a wire-form message.
func Unmarshal(data []byte) (Message, error) {
	if len(data) > MaxMessageSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrOversized, len(data))
	}

	d := decoder{buf: data}
	msg := Message{Type: d.string()}

	switch msg.Type {
	case TypeClearAll, TypeVelocityClearAll:
	case TypeBan:
		msg.SubjectID = d.subject()
		msg.ExpiresAt = d.int64()
	case TypeUnban, TypeVelocityUnban, TypeCheckBan:
		msg.SubjectID = d.subject()
	case TypeBanStatus:
		msg.SubjectID = d.subject()
		msg.IsBanned = d.bool()
		msg.TimeLeft = d.int64()
	default:
		if d.err == nil {
			return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
		}
	}

	if d.err != nil {
		return Message{}, d.err
	}
	return msg, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s))) //nolint:gosec // strings here are type tags and UUIDs
	return append(buf, s...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// decoder reads fields sequentially, latching the first error so call sites
// stay flat.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	if len(d.buf) < 2 {
		d.err = ErrTruncated
		return ""
	}
	n := int(binary.BigEndian.Uint16(d.buf[:2]))
	if len(d.buf) < 2+n {
		d.err = ErrTruncated
		return ""
	}
	s := string(d.buf[2 : 2+n])
	d.buf = d.buf[2+n:]
	return s
}

func (d *decoder) subject() uuid.UUID {
	s := d.string()
	if d.err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		d.err = fmt.Errorf("protocol: bad subject id %q: %w", s, err)
		return uuid.Nil
	}
	return id
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	if len(d.buf) < 8 {
		d.err = ErrTruncated
		return 0
	}
	v := int64(binary.BigEndian.Uint64(d.buf[:8])) //nolint:gosec // wire values are epoch ms
	d.buf = d.buf[8:]
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	if len(d.buf) < 1 {
		d.err = ErrTruncated
		return false
	}
	v := d.buf[0] != 0
	d.buf = d.buf[1:]
	return v
}
