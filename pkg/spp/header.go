// Package spp implements the CCSDS Space Packet Protocol primary-header
// codec and the unsegmented CCSDS-epoch timecode codec used by the TCPSPP
// convergence layer.
package spp

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxAPID is the largest value a packet's 11-bit APID field can hold.
	MaxAPID = 0x7FF
	// MaxSegmentNumber is the largest value the 14-bit segment number can
	// hold.
	MaxSegmentNumber = 0x3FFF
	// MaxDataLength is the largest total length (secondary header plus
	// payload) a primary header's length field can describe.
	MaxDataLength = 65536
	// PrimaryHeaderSize is the fixed size, in bytes, of an SPP primary
	// header.
	PrimaryHeaderSize = 6
)

// SegmentStatus is the 2-bit sequence-flags field of an SPP primary header.
type SegmentStatus uint8

const (
	SegmentContinuation SegmentStatus = 0
	SegmentFirst        SegmentStatus = 1
	SegmentLast         SegmentStatus = 2
	SegmentUnsegmented  SegmentStatus = 3
)

// PrimaryHeader is the decoded form of an SPP primary header.
type PrimaryHeader struct {
	IsRequest          bool
	HasSecondaryHeader bool
	APID               uint16
	SegmentStatus      SegmentStatus
	SegmentNumber      uint16
	// DataLength is the number of bytes following the primary header
	// (secondary header octets plus payload), i.e. the wire length field
	// plus one.
	DataLength int
}

// EncodePrimaryHeader packs h into its 6-byte wire form.
func EncodePrimaryHeader(h PrimaryHeader) ([PrimaryHeaderSize]byte, error) {
	var out [PrimaryHeaderSize]byte
	if h.APID > MaxAPID {
		return out, fmt.Errorf("spp: apid %#x exceeds maximum %#x", h.APID, MaxAPID)
	}
	if h.SegmentNumber > MaxSegmentNumber {
		return out, fmt.Errorf("spp: segment number %#x exceeds maximum %#x", h.SegmentNumber, MaxSegmentNumber)
	}
	if h.DataLength < 1 || h.DataLength > MaxDataLength {
		return out, fmt.Errorf("spp: data_length %d out of range [1, %d]", h.DataLength, MaxDataLength)
	}

	part1 := h.APID
	if h.IsRequest {
		part1 |= 0x1000
	}
	if h.HasSecondaryHeader {
		part1 |= 0x0800
	}
	part2 := uint16(h.SegmentStatus)<<14 | h.SegmentNumber
	length := uint16(h.DataLength - 1)

	binary.BigEndian.PutUint16(out[0:2], part1)
	binary.BigEndian.PutUint16(out[2:4], part2)
	binary.BigEndian.PutUint16(out[4:6], length)
	return out, nil
}

// DecodePrimaryHeader unpacks the first PrimaryHeaderSize bytes of buf.
func DecodePrimaryHeader(buf []byte) (PrimaryHeader, error) {
	if len(buf) < PrimaryHeaderSize {
		return PrimaryHeader{}, fmt.Errorf("spp: primary header needs %d bytes, got %d", PrimaryHeaderSize, len(buf))
	}
	part1 := binary.BigEndian.Uint16(buf[0:2])
	part2 := binary.BigEndian.Uint16(buf[2:4])
	length := binary.BigEndian.Uint16(buf[4:6])
	return PrimaryHeader{
		IsRequest:          part1&0x1000 != 0,
		HasSecondaryHeader: part1&0x0800 != 0,
		APID:               part1 & 0x07FF,
		SegmentStatus:      SegmentStatus((part2 >> 14) & 0x3),
		SegmentNumber:      part2 & 0x3FFF,
		DataLength:         int(length) + 1,
	}, nil
}
