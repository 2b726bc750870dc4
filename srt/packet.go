package srt

import (
	"encoding/binary"
)

// PacketType distinguishes data packets from control packets; it is the
// single bit at position 0 of the common 16-byte header.
type PacketType uint8

const (
	PacketData    PacketType = 0
	PacketControl PacketType = 1
)

// ControlType enumerates the SRT control packet subtypes, carried in
// bits[1..15] of the common header when F=1.
type ControlType uint16

const (
	ControlHandshake     ControlType = 0x0000
	ControlKeepalive     ControlType = 0x0001
	ControlACK           ControlType = 0x0002
	ControlNAK           ControlType = 0x0003
	ControlCongestionWarn ControlType = 0x0004
	ControlShutdown      ControlType = 0x0005
	ControlACKACK        ControlType = 0x0006
	ControlDropReq       ControlType = 0x0007
	ControlPeerError     ControlType = 0x0008
	ControlUser          ControlType = 0x7FFF
)

// IsDefined reports whether c is one of the control types this engine
// recognizes. Anything else is a packet-format error per spec.
func (c ControlType) IsDefined() bool {
	switch c {
	case ControlHandshake, ControlKeepalive, ControlACK, ControlNAK,
		ControlCongestionWarn, ControlShutdown, ControlACKACK,
		ControlDropReq, ControlPeerError, ControlUser:
		return true
	}
	return false
}

const commonHeaderSize = 16

// DataFlags packs the PP/O/KK/R bits of a data packet header alongside the
// 26-bit message number.
type DataFlags uint32

const (
	dataFlagsShift = 26
)

// Position identifies the in-message position of a data packet (the PP field).
type Position uint8

const (
	PositionMiddle Position = 0 // packet in the middle of a multi-packet message
	PositionFirst  Position = 2 // PP=10: first packet of a message
	PositionLast   Position = 1 // PP=01: last packet of a message
	PositionSolo   Position = 3 // PP=11: a message fits in one packet
)

// KeyEncryption identifies the KK field of a data packet.
type KeyEncryption uint8

const (
	KeyEncryptionNone KeyEncryption = 0
	KeyEncryptionEven KeyEncryption = 1
	KeyEncryptionOdd  KeyEncryption = 2
)

// DataPacket is the decoded representation of an SRT data packet: a header
// view plus the payload slice it borrows from the wire buffer.
type DataPacket struct {
	Seq       SeqNr
	Position  Position
	Ordered   bool
	KeyEnc    KeyEncryption
	Retransmit bool
	MsgNr     MsgNr
	Timestamp TimeStamp
	DestSocketID uint32
	Payload   []byte
}

// ControlPacket is the decoded representation of an SRT control packet. CIF
// is the Control Information Field, a borrowed slice whose layout depends on
// Type (ACK, NAK, handshake CIF, and so on all differ).
type ControlPacket struct {
	Type         ControlType
	Subtype      uint16
	TypeInfo     uint32
	Timestamp    TimeStamp
	DestSocketID uint32
	CIF          []byte
}

// DecodePacket classifies buf as a data or control packet and decodes its
// common header. The returned Payload/CIF slices borrow buf rather than
// copying it; the returned header struct itself is newly allocated.
func DecodePacket(buf []byte) (data *DataPacket, ctrl *ControlPacket, err error) {
	if len(buf) < commonHeaderSize {
		return nil, nil, newErr(ErrKindPacketFormat, "common header")
	}
	word0 := binary.BigEndian.Uint32(buf[0:4])
	isControl := word0>>31 != 0
	if isControl {
		c := &ControlPacket{
			Type:         ControlType((word0 >> 16) & 0x7FFF),
			Subtype:      uint16(word0 & 0xFFFF),
			TypeInfo:     binary.BigEndian.Uint32(buf[4:8]),
			Timestamp:    TimeStamp(binary.BigEndian.Uint32(buf[8:12])),
			DestSocketID: binary.BigEndian.Uint32(buf[12:16]),
			CIF:          buf[16:],
		}
		if !c.Type.IsDefined() {
			return nil, nil, newErr(ErrKindPacketFormat, "undefined control type")
		}
		return nil, c, nil
	}
	flagsAndMsg := binary.BigEndian.Uint32(buf[4:8])
	d := &DataPacket{
		Seq:          SeqNr(word0 & seqMask),
		Position:     Position((flagsAndMsg >> 30) & 0x3),
		Ordered:      (flagsAndMsg>>29)&0x1 != 0,
		KeyEnc:       KeyEncryption((flagsAndMsg >> 27) & 0x3),
		Retransmit:   (flagsAndMsg>>26)&0x1 != 0,
		MsgNr:        MsgNr(flagsAndMsg & msgMask),
		Timestamp:    TimeStamp(binary.BigEndian.Uint32(buf[8:12])),
		DestSocketID: binary.BigEndian.Uint32(buf[12:16]),
		Payload:      buf[16:],
	}
	return d, nil, nil
}

// AppendDataPacket appends the wire encoding of a data packet to dst,
// returning the extended buffer. Per the teacher's pure-function-over-a-slice
// idiom this performs no allocation beyond what append itself may need.
func AppendDataPacket(dst []byte, d *DataPacket) []byte {
	var hdr [commonHeaderSize]byte
	word0 := uint32(d.Seq) & seqMask // F=0 implicit, top bit already masked off
	binary.BigEndian.PutUint32(hdr[0:4], word0)
	flagsAndMsg := uint32(d.Position&0x3)<<30 | boolBit(d.Ordered)<<29 |
		uint32(d.KeyEnc&0x3)<<27 | boolBit(d.Retransmit)<<26 | uint32(d.MsgNr)&msgMask
	binary.BigEndian.PutUint32(hdr[4:8], flagsAndMsg)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(d.Timestamp))
	binary.BigEndian.PutUint32(hdr[12:16], d.DestSocketID)
	dst = append(dst, hdr[:]...)
	dst = append(dst, d.Payload...)
	return dst
}

// AppendControlPacket appends the wire encoding of a control packet to dst.
func AppendControlPacket(dst []byte, c *ControlPacket) []byte {
	var hdr [commonHeaderSize]byte
	word0 := uint32(1)<<31 | uint32(c.Type&0x7FFF)<<16 | uint32(c.Subtype)
	binary.BigEndian.PutUint32(hdr[0:4], word0)
	binary.BigEndian.PutUint32(hdr[4:8], c.TypeInfo)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(c.Timestamp))
	binary.BigEndian.PutUint32(hdr[12:16], c.DestSocketID)
	dst = append(dst, hdr[:]...)
	dst = append(dst, c.CIF...)
	return dst
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
