// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains MSF (Minutes:Seconds:Frames) addressing helpers.
package psx

import "fmt"

// ToBCD converts a binary value 0..99 to binary-coded decimal.
func ToBCD(value int) byte {
	return byte(((value / 10) << 4) | (value % 10))
}

// FromBCD converts a binary-coded decimal byte back to its binary value.
func FromBCD(value byte) int {
	return int(value>>4)*10 + int(value&0x0F)
}

// LSNToMSF splits a logical sector number into minute, second and frame.
// The 150-sector pregap offset is NOT applied here; callers that build
// sector headers add PREGAP_SECTORS first.
func LSNToMSF(lsn uint32) (minute, second, frame int) {
	minute = int(lsn / (60 * 75))
	second = int((lsn / 75) % 60)
	frame = int(lsn % 75)
	return
}

// MSFToLSN converts a minute/second/frame triple to a logical sector
// number, subtracting the 150-sector pregap.
func MSFToLSN(minute, second, frame int) uint32 {
	return uint32((minute*60+second)*75 + frame - PREGAP_SECTORS)
}

// MSFString formats an LSN as the "mm:ss:ff" timestamp used by cue sheets.
func MSFString(lsn uint32) string {
	m, s, f := LSNToMSF(lsn)
	return fmt.Sprintf("%02d:%02d:%02d", m, s, f)
}

// HeaderMSF returns the three BCD address bytes of a raw sector header
// for the given LSN, offset by the standard two-second pregap.
func HeaderMSF(lsn uint32) [3]byte {
	m, s, f := LSNToMSF(lsn + PREGAP_SECTORS)
	return [3]byte{ToBCD(m), ToBCD(s), ToBCD(f)}
}
