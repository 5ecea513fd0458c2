// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the Reed-Solomon error correction code generator for
// Mode 2 Form 1 sectors.
package psx

// GF(2^8) lookup tables for the Reed-Solomon product code,
// generator polynomial 0x11D.
var (
	eccFLut [256]byte
	eccBLut [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		j := (i << 1) & 0xFF
		if i&0x80 != 0 {
			j ^= 0x1D
		}
		eccFLut[i] = byte(j)
		eccBLut[byte(i)^byte(j)] = byte(i)
	}
}

// eccCompute generates one parity plane of the (24,26)/(43,45) product code.
// src covers the sector from the header onward; dest receives the first
// parity byte of each of the majorCount vectors, followed by the second
// parity byte of each vector.
func eccCompute(src []byte, majorCount, minorCount, majorMult, minorInc int, dest []byte) {
	size := majorCount * minorCount
	for major := 0; major < majorCount; major++ {
		index := (major>>1)*majorMult + (major & 1)
		var eccA, eccB byte
		for minor := 0; minor < minorCount; minor++ {
			temp := src[index]
			index += minorInc
			if index >= size {
				index -= size
			}
			eccA ^= temp
			eccB ^= temp
			eccA = eccFLut[eccA]
		}
		eccA = eccBLut[eccFLut[eccA]^eccB]
		dest[major] = eccA
		dest[major+majorCount] = eccA ^ eccB
	}
}

// ECCGenerate fills in the P and Q parity bytes of a 2352-byte Mode 2
// Form 1 sector. The four header bytes are zeroed during the computation,
// per the XA form 1 convention, and restored afterwards.
func ECCGenerate(sector []byte) {
	var header [4]byte
	copy(header[:], sector[12:16])
	sector[12], sector[13], sector[14], sector[15] = 0, 0, 0, 0

	// P parity: 86 columns of 24 bytes over address + subheader + data + EDC
	eccCompute(sector[12:], 86, 24, 2, 86, sector[2076:2248])
	// Q parity: 52 diagonals of 43 bytes, covering the P parity as well
	eccCompute(sector[12:], 52, 43, 86, 88, sector[2248:2352])

	copy(sector[12:16], header[:])
}
