package spp

// Context configures the secondary-header contents — ancillary data length
// and an optional timecode — shared by every packet built or parsed against
// it.
type Context struct {
	AncillaryDataLength int
	Timecode            *TimecodeContext
}

func (ctx *Context) timecodeSize() int {
	if ctx.Timecode == nil {
		return 0
	}
	return ctx.Timecode.Size()
}

// HasSecondaryHeader reports whether any secondary header octets (ancillary
// data or a timecode) are configured.
func (ctx *Context) HasSecondaryHeader() bool {
	return ctx.AncillaryDataLength > 0 || ctx.Timecode != nil
}

// Size returns size(ctx, payload_len): the full packet size, including the
// primary header, any secondary header, and payloadLen bytes of payload.
func (ctx *Context) Size(payloadLen int) int {
	return PrimaryHeaderSize + ctx.AncillaryDataLength + ctx.timecodeSize() + payloadLen
}

// MinPayloadSize returns get_min_payload_size(ctx): 0 if a secondary header
// is present (since data_length only needs to cover the secondary header),
// else 1 (the primary header's length field can't encode an empty packet).
func (ctx *Context) MinPayloadSize() int {
	if ctx.HasSecondaryHeader() {
		return 0
	}
	return 1
}

// MaxPayloadSize returns get_max_payload_size(ctx): the largest payload that
// still fits within MaxDataLength alongside the configured secondary
// header.
func (ctx *Context) MaxPayloadSize() int {
	return MaxDataLength - ctx.AncillaryDataLength - ctx.timecodeSize()
}

// Meta carries the per-packet fields a Context doesn't fix: header flags
// and, if a timecode is configured, its timestamp and counter.
type Meta struct {
	IsRequest     bool
	APID          uint16
	SegmentStatus SegmentStatus
	SegmentNumber uint16
	Timestamp     uint32
	Counter       uint32
}

// SerializeHeader writes the primary header and, if configured, the
// timecode secondary header for a packet carrying payloadLen bytes of
// payload (ancillary data is accounted for by length but not written here —
// callers append their own ancillary bytes after this header).
func SerializeHeader(ctx *Context, meta Meta, payloadLen int) ([]byte, error) {
	dataLength := payloadLen + ctx.AncillaryDataLength + ctx.timecodeSize()
	header := PrimaryHeader{
		IsRequest:          meta.IsRequest,
		HasSecondaryHeader: ctx.HasSecondaryHeader(),
		APID:               meta.APID,
		SegmentStatus:      meta.SegmentStatus,
		SegmentNumber:      meta.SegmentNumber,
		DataLength:         dataLength,
	}
	encoded, err := EncodePrimaryHeader(header)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), encoded[:]...)
	if ctx.Timecode != nil {
		out = append(out, SerializeTimecode(ctx.Timecode, meta.Timestamp, meta.Counter)...)
	}
	return out, nil
}
