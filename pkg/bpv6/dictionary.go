// Package bpv6 implements the Bundle Protocol version 6 (RFC 5050) codec:
// the dictionary-based EID layout, the incremental byte-driven parser, and
// the serializer/sizer pair.
package bpv6

import (
	"bytes"
	"fmt"
	"strings"

	dtn "github.com/go-dtn/upcn"
)

// DictDescriptor is the result of CalculateDict: the offsets for the four
// fixed EIDs, one pair per extension-block EID reference in source order,
// and the total dictionary byte length.
type DictDescriptor struct {
	Destination EIDOffsets
	Source      EIDOffsets
	ReportTo    EIDOffsets
	Custodian   EIDOffsets
	BlockRefs   [][]EIDOffsets // per block, in bundle order
	Length      uint32
}

// EIDOffsets locates one EID in the dictionary: the offsets of its scheme
// and SSP strings.
type EIDOffsets struct {
	SchemeOffset uint32
	SSPOffset    uint32
}

// splitEID splits a non-null EID into scheme and SSP. A null EID is treated
// as "dtn:none".
func splitEID(eid dtn.EID) (scheme, ssp string) {
	if eid == "" {
		eid = dtn.NoneEID
	}
	s := string(eid)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "dtn", "none"
	}
	return s[:idx], s[idx+1:]
}

// appendEID writes scheme\0ssp\0 to buf and returns the offsets the two
// strings landed at.
func appendEID(buf *bytes.Buffer, eid dtn.EID) EIDOffsets {
	scheme, ssp := splitEID(eid)
	off := EIDOffsets{
		SchemeOffset: uint32(buf.Len()),
		SSPOffset:    uint32(buf.Len() + len(scheme) + 1),
	}
	buf.WriteString(scheme)
	buf.WriteByte(0)
	buf.WriteString(ssp)
	buf.WriteByte(0)
	return off
}

// CalculateDict lays out bundle's dictionary using the simple
// non-deduplicating scheme: every EID is appended in turn, back to back,
// with no attempt to reuse an identical scheme or SSP already written. This
// satisfies the only contract the parser relies on (str_read(dict+offset)
// recovers the original string) without the bookkeeping a deduplicating
// layout would need.
func CalculateDict(b *dtn.Bundle) *DictDescriptor {
	var buf bytes.Buffer
	desc := &DictDescriptor{}

	desc.Destination = appendEID(&buf, b.Destination)
	desc.Source = appendEID(&buf, b.Source)
	desc.ReportTo = appendEID(&buf, b.ReportTo)
	desc.Custodian = appendEID(&buf, b.CurrentCustodian)

	desc.BlockRefs = make([][]EIDOffsets, len(b.Blocks))
	for i, blk := range b.Blocks {
		if blk.Flags&dtn.BlockFlagHasEIDRefField == 0 {
			continue
		}
		refs := make([]EIDOffsets, len(blk.EIDRefs))
		for j, eid := range blk.EIDRefs {
			refs[j] = appendEID(&buf, eid)
		}
		desc.BlockRefs[i] = refs
	}

	desc.Length = uint32(buf.Len())
	return desc
}

// SerializeDict fills dst (which must be exactly desc.Length bytes) with
// the dictionary bytes for b, using the same layout CalculateDict used to
// compute desc.
func SerializeDict(dst []byte, b *dtn.Bundle, desc *DictDescriptor) error {
	if uint32(len(dst)) != desc.Length {
		return fmt.Errorf("bpv6: dictionary buffer is %d bytes, want %d", len(dst), desc.Length)
	}
	var buf bytes.Buffer
	buf.Grow(int(desc.Length))

	appendEID(&buf, b.Destination)
	appendEID(&buf, b.Source)
	appendEID(&buf, b.ReportTo)
	appendEID(&buf, b.CurrentCustodian)
	for _, blk := range b.Blocks {
		if blk.Flags&dtn.BlockFlagHasEIDRefField == 0 {
			continue
		}
		for _, eid := range blk.EIDRefs {
			appendEID(&buf, eid)
		}
	}
	copy(dst, buf.Bytes())
	return nil
}

// readCString reads a NUL-terminated string from buf starting at offset.
// dictLength is the declared dictionary length, not len(buf): the parser
// appends a trailing NUL sentinel after the last declared byte, so buf is
// dictLength+1 bytes long, but a valid offset must still point strictly
// inside the declared dictionary, never at the sentinel itself.
func readCString(buf []byte, dictLength, offset uint32) (string, error) {
	if offset >= dictLength {
		return "", dtn.NewParseError(dtn.ParseErrDictOffsetOutOfRange)
	}
	end := bytes.IndexByte(buf[offset:], 0)
	if end < 0 {
		return "", dtn.NewParseError(dtn.ParseErrDictOffsetOutOfRange)
	}
	return string(buf[offset : int(offset)+end]), nil
}

// resolveEID reads scheme and ssp strings out of dict (dictLength declared
// bytes, plus the parser's trailing NUL sentinel) at the given offsets and
// joins them as "scheme:ssp", rejecting a scheme that itself contains a
// colon.
func resolveEID(dict []byte, dictLength uint32, off EIDOffsets) (dtn.EID, error) {
	scheme, err := readCString(dict, dictLength, off.SchemeOffset)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(scheme, ':') {
		return "", dtn.NewParseError(dtn.ParseErrSchemeContainsColon)
	}
	ssp, err := readCString(dict, dictLength, off.SSPOffset)
	if err != nil {
		return "", err
	}
	return dtn.EID(scheme + ":" + ssp), nil
}
