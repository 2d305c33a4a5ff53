package bpv6

import (
	"bytes"
	"io"

	dtn "github.com/go-dtn/upcn"
	"github.com/go-dtn/upcn/internal/sdnv"
)

// rfc5050FlagMask restricts ProcessingFlags to the bit set RFC 5050
// actually defines, in case a caller set higher application-private bits.
const rfc5050FlagMask = dtn.FlagIsFragment | dtn.FlagAdminRecord | dtn.FlagNoFragment |
	dtn.FlagCustodyRequested | dtn.FlagSingletonEndpoint | dtn.FlagAckRequested |
	dtn.FlagNormalPriority | dtn.FlagExpeditedPriority |
	dtn.FlagReportReception | dtn.FlagReportCustody | dtn.FlagReportForwarding |
	dtn.FlagReportDelivery | dtn.FlagReportDeletion

func writeSDNV[T sdnv.Unsigned](w io.Writer, v T) error {
	buf := make([]byte, sdnv.SizeOf(v))
	sdnv.Write(buf, v)
	_, err := w.Write(buf)
	return err
}

// primaryBlockTailSize computes the number of bytes following
// primary_block_length's own SDNV inside the primary block: the eight
// offset SDNVs, the three u64 SDNVs, dict_length's SDNV, the dictionary
// bytes, and (if fragmented) the two fragment SDNVs.
func primaryBlockTailSize(b *dtn.Bundle, desc *DictDescriptor) uint32 {
	n := 0
	n += sdnv.SizeOf(desc.Destination.SchemeOffset) + sdnv.SizeOf(desc.Destination.SSPOffset)
	n += sdnv.SizeOf(desc.Source.SchemeOffset) + sdnv.SizeOf(desc.Source.SSPOffset)
	n += sdnv.SizeOf(desc.ReportTo.SchemeOffset) + sdnv.SizeOf(desc.ReportTo.SSPOffset)
	n += sdnv.SizeOf(desc.Custodian.SchemeOffset) + sdnv.SizeOf(desc.Custodian.SSPOffset)
	n += sdnv.SizeOf(b.CreationTimestamp)
	n += sdnv.SizeOf(b.SequenceNumber)
	n += sdnv.SizeOf(b.Lifetime / 1_000_000)
	n += sdnv.SizeOf(desc.Length)
	n += int(desc.Length)
	if b.ProcessingFlags&dtn.FlagIsFragment != 0 {
		n += sdnv.SizeOf(b.FragmentOffset)
		n += sdnv.SizeOf(b.TotalADULength)
	}
	return uint32(n)
}

// recalculatePrimaryBlockLength finds the fixed point of
// primary_block_length = size(primary_block_length SDNV) + tail, iterating
// because the SDNV of primary_block_length is itself part of what it
// measures. SDNV size is monotone non-decreasing in value, so at most one
// extra iteration beyond the first guess is ever needed in practice.
func recalculatePrimaryBlockLength(b *dtn.Bundle, desc *DictDescriptor) uint32 {
	tail := primaryBlockTailSize(b, desc)
	length := tail
	for {
		candidate := tail + uint32(sdnv.SizeOf(length))
		if candidate == length {
			return length
		}
		length = candidate
	}
}

// Serialize writes bundle b to w in the wire order specified by §4.D,
// recomputing primary_block_length first.
func Serialize(w io.Writer, b *dtn.Bundle) error {
	desc := CalculateDict(b)
	primaryLen := recalculatePrimaryBlockLength(b, desc)

	if _, err := w.Write([]byte{byte(dtn.ProtocolVersion6)}); err != nil {
		return err
	}
	if err := writeSDNV(w, uint64(b.ProcessingFlags&rfc5050FlagMask)); err != nil {
		return err
	}
	if err := writeSDNV(w, primaryLen); err != nil {
		return err
	}
	for _, off := range []EIDOffsets{desc.Destination, desc.Source, desc.ReportTo, desc.Custodian} {
		if err := writeSDNV(w, off.SchemeOffset); err != nil {
			return err
		}
		if err := writeSDNV(w, off.SSPOffset); err != nil {
			return err
		}
	}
	if err := writeSDNV(w, b.CreationTimestamp); err != nil {
		return err
	}
	if err := writeSDNV(w, b.SequenceNumber); err != nil {
		return err
	}
	if err := writeSDNV(w, b.Lifetime/1_000_000); err != nil {
		return err
	}
	if err := writeSDNV(w, desc.Length); err != nil {
		return err
	}
	dict := make([]byte, desc.Length)
	if err := SerializeDict(dict, b, desc); err != nil {
		return err
	}
	if _, err := w.Write(dict); err != nil {
		return err
	}
	if b.ProcessingFlags&dtn.FlagIsFragment != 0 {
		if err := writeSDNV(w, b.FragmentOffset); err != nil {
			return err
		}
		if err := writeSDNV(w, b.TotalADULength); err != nil {
			return err
		}
	}

	for i, blk := range b.Blocks {
		if err := serializeBlock(w, &blk, desc.BlockRefs[i]); err != nil {
			return err
		}
	}
	return nil
}

func serializeBlock(w io.Writer, blk *dtn.Block, refs []EIDOffsets) error {
	if _, err := w.Write([]byte{blk.Type}); err != nil {
		return err
	}
	if err := writeSDNV(w, uint8(blk.Flags)); err != nil {
		return err
	}
	if blk.Flags&dtn.BlockFlagHasEIDRefField != 0 {
		if err := writeSDNV(w, uint32(len(refs))); err != nil {
			return err
		}
		for _, ref := range refs {
			if err := writeSDNV(w, ref.SchemeOffset); err != nil {
				return err
			}
			if err := writeSDNV(w, ref.SSPOffset); err != nil {
				return err
			}
		}
	}
	if err := writeSDNV(w, uint32(len(blk.Data))); err != nil {
		return err
	}
	_, err := w.Write(blk.Data)
	return err
}

// SerializedSize returns the exact number of bytes Serialize would write
// for b.
func SerializedSize(b *dtn.Bundle) int {
	var buf bytes.Buffer
	// Serialize never fails against an in-memory buffer; treat
	// serialization as total on any well-formed bundle.
	_ = Serialize(&buf, b)
	return buf.Len()
}
