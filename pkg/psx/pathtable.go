// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the ISO 9660 path table builder. Two copies of the
// table are kept, one little-endian (L) and one big-endian (M).
package psx

import (
	"encoding/binary"
	"fmt"
)

// PathTable accumulates the L- and M-format path table images while the
// directory tree is traversed breadth-first. Tables larger than one sector
// are rejected.
type PathTable struct {
	lTable  []byte
	mTable  []byte
	records uint16
}

// NewPathTable returns an empty path table pair.
func NewPathTable() *PathTable {
	return &PathTable{}
}

// AddEntry appends a directory to both tables and returns its record
// number. The root is record 1 and uses a single NUL byte as its name;
// parent record numbers are always lower than their children's.
func (pt *PathTable) AddEntry(name string, extent uint32, parentRecord uint16) (uint16, error) {
	nameBytes := []byte(name)
	if len(nameBytes) == 0 {
		nameBytes = []byte{0x00} // root
	}

	entryLen := 8 + len(nameBytes)
	if entryLen%2 != 0 {
		entryLen++
	}
	if len(pt.lTable)+entryLen > ISO_BLOCKSIZE {
		return 0, fmt.Errorf("the path table is larger than one sector, this is not supported")
	}

	l := make([]byte, entryLen)
	m := make([]byte, entryLen)
	l[0] = byte(len(nameBytes))
	m[0] = byte(len(nameBytes))
	l[1] = 0 // extended attribute record length
	m[1] = 0
	binary.LittleEndian.PutUint32(l[2:6], extent)
	binary.BigEndian.PutUint32(m[2:6], extent)
	binary.LittleEndian.PutUint16(l[6:8], parentRecord)
	binary.BigEndian.PutUint16(m[6:8], parentRecord)
	copy(l[8:], nameBytes)
	copy(m[8:], nameBytes)

	pt.lTable = append(pt.lTable, l...)
	pt.mTable = append(pt.mTable, m...)
	pt.records++
	return pt.records, nil
}

// Size returns the byte length of one table.
func (pt *PathTable) Size() int {
	return len(pt.lTable)
}

// LTable returns the little-endian table image.
func (pt *PathTable) LTable() []byte {
	return pt.lTable
}

// MTable returns the big-endian table image.
func (pt *PathTable) MTable() []byte {
	return pt.mTable
}

// ParsePathTable decodes the entries of a little-endian path table image.
func ParsePathTable(data []byte, size uint32) []PathTableEntry {
	var entries []PathTableEntry
	offset := 0

	for offset+8 <= int(size) && offset+8 <= len(data) {
		nameLen := int(data[offset])
		if nameLen == 0 {
			break
		}

		entry := PathTableEntry{
			NameLength:         data[offset],
			ExtendedAttrLength: data[offset+1],
			DirLocation:        binary.LittleEndian.Uint32(data[offset+2 : offset+6]),
			ParentDir:          binary.LittleEndian.Uint16(data[offset+6 : offset+8]),
		}

		nameStart := offset + 8
		nameEnd := nameStart + nameLen
		if nameEnd > len(data) {
			break
		}
		entry.Name = string(data[nameStart:nameEnd])

		offset = nameEnd
		if offset%2 != 0 {
			offset++
		}

		entries = append(entries, entry)
	}

	return entries
}
