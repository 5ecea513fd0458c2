// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the ISO 9660 directory record codec with the CD-XA
// system use extension.
package psx

import (
	"encoding/binary"
	"fmt"
)

// XA_SYSTEM_USE_SIZE is the size of the CD-XA system use area appended to
// every directory record: group ID, user ID, attribute word, "XA"
// signature, file number and five reserved bytes.
const XA_SYSTEM_USE_SIZE = 14

// XAEntry is the decoded CD-XA system use area of a directory record.
type XAEntry struct {
	GroupID    uint16
	UserID     uint16
	Attributes uint16
	FileNum    byte
}

// DirRecord is one decoded ISO 9660 directory record.
type DirRecord struct {
	Length    byte
	ExtentLSN uint32
	Size      uint32
	Time      RecordTime
	Flags     byte
	Name      string // raw identifier, version suffix included
	XA        *XAEntry
}

// IsDir reports whether the record describes a directory.
func (r *DirRecord) IsDir() bool {
	return r.Flags&ISO_DIRECTORY != 0
}

// RecordSize returns the on-disc size of a directory record with the given
// identifier length and system use area length. Records are padded to an
// even number of bytes before and after the system use area.
func RecordSize(nameLen, suLen int) int {
	size := 33 + nameLen
	if size%2 != 0 {
		size++
	}
	size += suLen
	if size%2 != 0 {
		size++
	}
	return size
}

// EncodeDirRecord serializes one directory record. name is the raw
// identifier (0x00 for ".", 0x01 for ".."); xa may be nil for records
// without a system use area, such as the root record embedded in the PVD.
func EncodeDirRecord(name []byte, extent, size uint32, t RecordTime, flags byte, xa *XAEntry) []byte {
	suLen := 0
	if xa != nil {
		suLen = XA_SYSTEM_USE_SIZE
	}
	recLen := RecordSize(len(name), suLen)

	buf := make([]byte, recLen)
	buf[0] = byte(recLen)
	buf[1] = 0 // extended attribute record length

	binary.LittleEndian.PutUint32(buf[2:6], extent)
	binary.BigEndian.PutUint32(buf[6:10], extent)
	binary.LittleEndian.PutUint32(buf[10:14], size)
	binary.BigEndian.PutUint32(buf[14:18], size)

	ts := t.Encode()
	copy(buf[18:25], ts[:])

	buf[25] = flags
	buf[26] = 0 // file unit size
	buf[27] = 0 // interleave gap size
	binary.LittleEndian.PutUint16(buf[28:30], 1)
	binary.BigEndian.PutUint16(buf[30:32], 1)

	buf[32] = byte(len(name))
	copy(buf[33:], name)

	if xa != nil {
		su := buf[recLen-XA_SYSTEM_USE_SIZE:]
		binary.BigEndian.PutUint16(su[0:2], xa.GroupID)
		binary.BigEndian.PutUint16(su[2:4], xa.UserID)
		binary.BigEndian.PutUint16(su[4:6], xa.Attributes)
		su[6] = 'X'
		su[7] = 'A'
		su[8] = xa.FileNum
	}

	return buf
}

// ParseDirRecord decodes the directory record at the start of data.
// A zero length byte terminates the records of a sector.
func ParseDirRecord(data []byte) (*DirRecord, error) {
	if len(data) < 1 || data[0] == 0 {
		return nil, nil
	}
	length := int(data[0])
	if length < 33 || length > len(data) {
		return nil, fmt.Errorf("directory record length %d out of bounds", length)
	}

	nameLen := int(data[32])
	if 33+nameLen > length {
		return nil, fmt.Errorf("identifier exceeds record bounds")
	}

	rec := &DirRecord{
		Length:    data[0],
		ExtentLSN: binary.LittleEndian.Uint32(data[2:6]),
		Size:      binary.LittleEndian.Uint32(data[10:14]),
		Time:      ParseRecordTime(data[18:25]),
		Flags:     data[25],
		Name:      string(data[33 : 33+nameLen]),
	}

	// The CD-XA system use area, when present, fills the record tail after
	// the identifier and its padding byte.
	suStart := 33 + nameLen
	if nameLen%2 == 0 {
		suStart++
	}
	if length-suStart >= XA_SYSTEM_USE_SIZE {
		su := data[suStart:length]
		if su[6] == 'X' && su[7] == 'A' {
			rec.XA = &XAEntry{
				GroupID:    binary.BigEndian.Uint16(su[0:2]),
				UserID:     binary.BigEndian.Uint16(su[2:4]),
				Attributes: binary.BigEndian.Uint16(su[4:6]),
				FileNum:    su[8],
			}
		}
	}

	return rec, nil
}
