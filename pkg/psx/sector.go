// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the raw Mode 2 sector synthesizer.
package psx

import "encoding/binary"

// syncPattern is the 12-byte sync mark opening every raw sector.
var syncPattern = [12]byte{
	0x00,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0x00,
}

// MakeMode2 synthesizes a 2352-byte raw Mode 2 sector into sector.
//
// For Form 2 (submode bit 5 set) data carries 2324 bytes of user data and
// the EDC covers bytes 16..2347. For Form 1 data carries 2048 bytes, the
// EDC covers bytes 16..2071 and the Reed-Solomon P/Q parity is appended.
// The subheader quadruple (fileNo, channel, submode, codingInfo) is stored
// twice per the XA specification.
func MakeMode2(sector []byte, data []byte, lsn uint32, fileNo, channel, submode, codingInfo byte) {
	for i := CD_SYNC_SIZE + CD_HEADER_SIZE; i < CD_SECTOR_SIZE; i++ {
		sector[i] = 0
	}

	copy(sector[0:12], syncPattern[:])
	msf := HeaderMSF(lsn)
	copy(sector[12:15], msf[:])
	sector[15] = 2

	sector[16], sector[20] = fileNo, fileNo
	sector[17], sector[21] = channel, channel
	sector[18], sector[22] = submode, submode
	sector[19], sector[23] = codingInfo, codingInfo

	if submode&SM_FORM2 != 0 {
		copy(sector[CD_XA_SYNC_HEADER:CD_XA_SYNC_HEADER+CD_XA_FORM2_SIZE], data)
		binary.LittleEndian.PutUint32(sector[2348:2352], EDC(sector[16:2348]))
	} else {
		copy(sector[CD_XA_SYNC_HEADER:CD_XA_SYNC_HEADER+CD_DATA_SIZE], data)
		binary.LittleEndian.PutUint32(sector[2072:2076], EDC(sector[16:2072]))
		ECCGenerate(sector)
	}
}

// ZeroEDC clears the trailing EDC bytes of a Form 2 sector. XA audio and
// video streams are mastered with the checksum zeroed.
func ZeroEDC(sector []byte) {
	sector[2348], sector[2349], sector[2350], sector[2351] = 0, 0, 0, 0
}

// IsForm2 reports whether a synthesized raw sector carries the Form 2
// submode bit.
func IsForm2(sector []byte) bool {
	return sector[18]&SM_FORM2 != 0
}
