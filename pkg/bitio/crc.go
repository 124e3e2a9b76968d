package bitio

// CRC-8 (FLAC frame header footer, polynomial x^8 + x^2 + x^1 + x^0, 0x07,
// no reflection) and CRC-16 (FLAC frame footer, polynomial x^16 + x^15 +
// x^2 + x^0, 0x8005, no reflection) per spec.md §4.2.4/§4.3. CRC-32 is the
// standard reflected IEEE/zlib polynomial; it is exported, but no other
// package in the tree calls it. MPEG-2 Systems' PSI CRC-32 (same
// polynomial, MSB-first, unreflected) is a distinct bit ordering and is
// computed locally in pkg/format/mpegts instead of reusing this one.
//
// Tables are precomputed const-style package vars per spec.md §9 ("treat
// these tables as compile-time data"); they are built once in init from the
// polynomial rather than hand-transcribed, since Go has no const-array
// generation at compile time for this width.

var crc8Table [256]byte
var crc16Table [256]uint16
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		// CRC-8, polynomial 0x07, MSB-first, no reflection.
		c8 := byte(i)
		for b := 0; b < 8; b++ {
			if c8&0x80 != 0 {
				c8 = (c8 << 1) ^ 0x07
			} else {
				c8 <<= 1
			}
		}
		crc8Table[i] = c8

		// CRC-16, polynomial 0x8005, MSB-first, no reflection.
		c16 := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if c16&0x8000 != 0 {
				c16 = (c16 << 1) ^ 0x8005
			} else {
				c16 <<= 1
			}
		}
		crc16Table[i] = c16

		// CRC-32, polynomial 0xEDB88320, reflected (standard IEEE/zlib).
		c32 := uint32(i)
		for b := 0; b < 8; b++ {
			if c32&1 != 0 {
				c32 = (c32 >> 1) ^ 0xEDB88320
			} else {
				c32 >>= 1
			}
		}
		crc32Table[i] = c32
	}
}

// CRC8 computes the FLAC-style CRC-8 over data, starting from 0.
func CRC8(data []byte) byte {
	return UpdateCRC8(0, data)
}

// UpdateCRC8 extends a running CRC-8 with more data.
func UpdateCRC8(crc byte, data []byte) byte {
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}

// CRC16 computes the FLAC-style CRC-16 over data, starting from 0.
func CRC16(data []byte) uint16 {
	return UpdateCRC16(0, data)
}

// UpdateCRC16 extends a running CRC-16 with more data.
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

// CRC32 computes the standard reflected IEEE CRC-32 (initial value and
// final XOR 0xFFFFFFFF).
func CRC32(data []byte) uint32 {
	crc := ^uint32(0)
	for _, b := range data {
		crc = crc32Table[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}
