// Package crc implements the CRC-16 variants used by the SPP convergence
// layer to protect encapsulated bundle frames on the wire.
package crc

// CRC16 is a running CRC-16 accumulator. The zero value is not usable;
// obtain one from NewCCITTFalse or NewX25.
type CRC16 struct {
	value  uint16
	init   uint16
	xorOut uint16
	table  *[256]uint16
}

var ccittFalseTable = buildTable(0x1021, false)
var x25Table = buildTable(0x1021, true)

// NewCCITTFalse returns an accumulator for the CRC-16/CCITT-FALSE variant:
// poly 0x1021, init 0xFFFF, no input/output reflection, xorout 0x0000.
func NewCCITTFalse() *CRC16 {
	return &CRC16{value: 0xFFFF, init: 0xFFFF, xorOut: 0x0000, table: &ccittFalseTable}
}

// NewX25 returns an accumulator for the CRC-16/X-25 variant: poly 0x1021
// reflected, init 0xFFFF, xorout 0xFFFF.
func NewX25() *CRC16 {
	return &CRC16{value: 0xFFFF, init: 0xFFFF, xorOut: 0xFFFF, table: &x25Table}
}

// buildTable constructs a byte-indexed lookup table for polynomial poly.
// When reflected is true the table is built for a reflected (LSB-first)
// implementation, as required by X-25; CCITT-FALSE uses the MSB-first form.
func buildTable(poly uint16, reflected bool) (table [256]uint16) {
	for i := 0; i < 256; i++ {
		if reflected {
			crc := uint16(i)
			rpoly := reverse16(poly)
			for b := 0; b < 8; b++ {
				if crc&1 != 0 {
					crc = (crc >> 1) ^ rpoly
				} else {
					crc >>= 1
				}
			}
			table[i] = crc
		} else {
			crc := uint16(i) << 8
			for b := 0; b < 8; b++ {
				if crc&0x8000 != 0 {
					crc = (crc << 1) ^ poly
				} else {
					crc <<= 1
				}
			}
			table[i] = crc
		}
	}
	return table
}

func reverse16(v uint16) uint16 {
	var r uint16
	for i := 0; i < 16; i++ {
		r <<= 1
		r |= v & 1
		v >>= 1
	}
	return r
}

// Reset returns the accumulator to its initial state.
func (c *CRC16) Reset() {
	c.value = c.init
}

// WriteByte folds a single byte into the running CRC. It never returns an
// error; the signature matches io.ByteWriter for convenience.
func (c *CRC16) WriteByte(b byte) error {
	if c.table == &x25Table {
		c.value = (c.value >> 8) ^ c.table[byte(c.value)^b]
	} else {
		c.value = (c.value << 8) ^ c.table[byte(c.value>>8)^b]
	}
	return nil
}

// Write folds every byte of p into the running CRC. It always returns
// len(p), nil, matching io.Writer.
func (c *CRC16) Write(p []byte) (int, error) {
	for _, b := range p {
		c.WriteByte(b)
	}
	return len(p), nil
}

// Sum16 returns the current check value with xorout applied.
func (c *CRC16) Sum16() uint16 {
	return c.value ^ c.xorOut
}

// CheckCCITTFalse is a convenience one-shot helper equivalent to feeding p
// through a fresh NewCCITTFalse accumulator.
func CheckCCITTFalse(p []byte) uint16 {
	c := NewCCITTFalse()
	c.Write(p)
	return c.Sum16()
}

// CheckX25 is a convenience one-shot helper equivalent to feeding p through
// a fresh NewX25 accumulator.
func CheckX25(p []byte) uint16 {
	c := NewX25()
	c.Write(p)
	return c.Sum16()
}
