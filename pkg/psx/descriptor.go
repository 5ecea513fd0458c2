// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the primary volume descriptor codec and the volume
// descriptor set terminator.
package psx

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// PVD carries the fields of the primary volume descriptor.
type PVD struct {
	SystemID            string
	VolumeID            string
	VolumeSpaceSize     uint32
	VolumeSetID         string
	PublisherID         string
	PreparerID          string
	ApplicationID       string
	CopyrightFileID     string
	AbstractFileID      string
	BibliographicFileID string
	PathTableSize       uint32
	TypeLPathTable      uint32
	OptTypeLPathTable   uint32
	TypeMPathTable      uint32
	OptTypeMPathTable   uint32
	RootRecord          []byte // 34-byte root directory record
	CreationDate        LTime
	ModificationDate    LTime
	ExpirationDate      LTime
	EffectiveDate       LTime
}

// strPad space-pads (or truncates) a descriptor identifier to size bytes.
func strPad(s string, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}

// putLTime writes a long-format date at the given offset.
func putLTime(buf []byte, offset int, t LTime) {
	enc := t.Encode()
	copy(buf[offset:offset+17], enc[:])
}

// Encode serializes the PVD into a 2048-byte logical sector payload.
func (p *PVD) Encode() []byte {
	buf := make([]byte, ISO_BLOCKSIZE)

	buf[0] = 1 // volume descriptor type
	copy(buf[1:6], "CD001")
	buf[6] = 1 // version

	copy(buf[8:40], strPad(p.SystemID, 32))
	copy(buf[40:72], strPad(p.VolumeID, 32))

	binary.LittleEndian.PutUint32(buf[80:84], p.VolumeSpaceSize)
	binary.BigEndian.PutUint32(buf[84:88], p.VolumeSpaceSize)

	binary.LittleEndian.PutUint16(buf[120:122], 1) // volume set size
	binary.BigEndian.PutUint16(buf[122:124], 1)
	binary.LittleEndian.PutUint16(buf[124:126], 1) // volume sequence number
	binary.BigEndian.PutUint16(buf[126:128], 1)
	binary.LittleEndian.PutUint16(buf[128:130], ISO_BLOCKSIZE)
	binary.BigEndian.PutUint16(buf[130:132], ISO_BLOCKSIZE)

	binary.LittleEndian.PutUint32(buf[132:136], p.PathTableSize)
	binary.BigEndian.PutUint32(buf[136:140], p.PathTableSize)
	binary.LittleEndian.PutUint32(buf[140:144], p.TypeLPathTable)
	binary.LittleEndian.PutUint32(buf[144:148], p.OptTypeLPathTable)
	binary.BigEndian.PutUint32(buf[148:152], p.TypeMPathTable)
	binary.BigEndian.PutUint32(buf[152:156], p.OptTypeMPathTable)

	copy(buf[156:190], p.RootRecord)

	copy(buf[190:318], strPad(p.VolumeSetID, 128))
	copy(buf[318:446], strPad(p.PublisherID, 128))
	copy(buf[446:574], strPad(p.PreparerID, 128))
	copy(buf[574:702], strPad(p.ApplicationID, 128))
	copy(buf[702:739], strPad(p.CopyrightFileID, 37))
	copy(buf[739:776], strPad(p.AbstractFileID, 37))
	copy(buf[776:813], strPad(p.BibliographicFileID, 37))

	putLTime(buf, 813, p.CreationDate)
	putLTime(buf, 830, p.ModificationDate)
	putLTime(buf, 847, p.ExpirationDate)
	putLTime(buf, 864, p.EffectiveDate)

	buf[881] = 1 // file structure version

	return buf
}

// ParsePVD decodes a 2048-byte primary volume descriptor payload.
func ParsePVD(data []byte) (*PVD, error) {
	if len(data) < ISO_BLOCKSIZE {
		return nil, fmt.Errorf("primary volume descriptor payload too short")
	}
	if data[0] != 1 || string(data[1:6]) != "CD001" {
		return nil, fmt.Errorf("invalid ISO 9660 signature")
	}

	trim := func(b []byte) string { return strings.TrimRight(string(b), " ") }

	return &PVD{
		SystemID:            trim(data[8:40]),
		VolumeID:            trim(data[40:72]),
		VolumeSpaceSize:     binary.LittleEndian.Uint32(data[80:84]),
		PathTableSize:       binary.LittleEndian.Uint32(data[132:136]),
		TypeLPathTable:      binary.LittleEndian.Uint32(data[140:144]),
		OptTypeLPathTable:   binary.LittleEndian.Uint32(data[144:148]),
		TypeMPathTable:      binary.BigEndian.Uint32(data[148:152]),
		OptTypeMPathTable:   binary.BigEndian.Uint32(data[152:156]),
		RootRecord:          append([]byte(nil), data[156:190]...),
		VolumeSetID:         trim(data[190:318]),
		PublisherID:         trim(data[318:446]),
		PreparerID:          trim(data[446:574]),
		ApplicationID:       trim(data[574:702]),
		CopyrightFileID:     trim(data[702:739]),
		AbstractFileID:      trim(data[739:776]),
		BibliographicFileID: trim(data[776:813]),
		CreationDate:        ParseLTime(data[813:830]),
		ModificationDate:    ParseLTime(data[830:847]),
		ExpirationDate:      ParseLTime(data[847:864]),
		EffectiveDate:       ParseLTime(data[864:881]),
	}, nil
}

// EncodeEVD serializes the volume descriptor set terminator.
func EncodeEVD() []byte {
	buf := make([]byte, ISO_BLOCKSIZE)
	buf[0] = 255
	copy(buf[1:6], "CD001")
	buf[6] = 1
	return buf
}
