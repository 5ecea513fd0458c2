// Package psx provides PlayStation-specific CD-ROM reading functionality.
// This file contains the .bin/.cue image driver: sector reads by LSN,
// table-of-contents access and ISO 9660 filesystem primitives.
package psx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CDReader provides read access to a raw disc image addressed by LSN.
// The image may span several bin files when the cue sheet uses one file
// per track.
type CDReader struct {
	files     []*os.File
	fileStart []uint32 // first global LSN of each file
	fileSize  []uint32 // sectors in each file
	total     uint32
	tracks    []Track
}

// OpenImage opens a disc image from a .bin or .cue path. A bare .bin (or a
// missing sibling cue sheet) is treated as a single MODE2/2352 data track.
func OpenImage(path string) (*CDReader, error) {
	cuePath := path
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		// use as is
	case ".bin":
		sibling := strings.TrimSuffix(path, filepath.Ext(path)) + ".cue"
		if _, err := os.Stat(sibling); err == nil {
			cuePath = sibling
		} else {
			return openSingleBin(path)
		}
	case "":
		cuePath = path + ".cue"
		if _, err := os.Stat(cuePath); err != nil {
			return openSingleBin(path + ".bin")
		}
	default:
		return nil, fmt.Errorf("error opening input image %s, or image has wrong type", path)
	}

	sheet, err := ParseCueSheet(cuePath)
	if err != nil {
		return nil, err
	}
	return openSheet(sheet)
}

// openSingleBin opens a raw image without a cue sheet as one data track.
func openSingleBin(binPath string) (*CDReader, error) {
	info, err := os.Stat(binPath)
	if err != nil {
		return nil, fmt.Errorf("error opening input image %s, or image has wrong type", binPath)
	}
	sectors := uint32(info.Size() / CD_SECTOR_SIZE)
	sheet := &CueSheet{
		BinFiles: []string{binPath},
		Tracks: []Track{{
			Number:   1,
			Mode:     "MODE2/2352",
			StartLSN: 0,
			DataLSN:  0,
			EndLSN:   sectors - 1,
			Sectors:  sectors,
			BinFile:  binPath,
		}},
	}
	return openSheet(sheet)
}

func openSheet(sheet *CueSheet) (*CDReader, error) {
	r := &CDReader{tracks: sheet.Tracks}

	for _, binPath := range sheet.BinFiles {
		f, err := os.Open(binPath)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("error opening input image %s: %w", binPath, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			r.Close()
			return nil, err
		}
		sectors := uint32(info.Size() / CD_SECTOR_SIZE)
		r.files = append(r.files, f)
		r.fileStart = append(r.fileStart, r.total)
		r.fileSize = append(r.fileSize, sectors)
		r.total += sectors
	}
	if r.total == 0 {
		r.Close()
		return nil, fmt.Errorf("input image is empty")
	}
	return r, nil
}

// Close releases the backing files.
func (r *CDReader) Close() error {
	var first error
	for _, f := range r.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.files = nil
	return first
}

// TotalSectors returns the sector count of the whole image.
func (r *CDReader) TotalSectors() uint32 {
	return r.total
}

// Tracks returns the table of contents.
func (r *CDReader) Tracks() []Track {
	return r.tracks
}

// ReadSectorRaw reads one raw 2352-byte sector by its global LSN.
func (r *CDReader) ReadSectorRaw(lsn uint32, buf []byte) error {
	if lsn >= r.total {
		return fmt.Errorf("LSN %d out of bounds (total: %d)", lsn, r.total)
	}
	idx := 0
	for idx+1 < len(r.files) && lsn >= r.fileStart[idx+1] {
		idx++
	}
	offset := int64(lsn-r.fileStart[idx]) * CD_SECTOR_SIZE
	if _, err := r.files[idx].Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("error reading sector %d of image file: %w", lsn, err)
	}
	if _, err := io.ReadFull(r.files[idx], buf[:CD_SECTOR_SIZE]); err != nil {
		return fmt.Errorf("error reading sector %d of image file: %w", lsn, err)
	}
	return nil
}

// ReadForm1 reads the 2048-byte user data of a data sector.
func (r *CDReader) ReadForm1(lsn uint32) ([]byte, error) {
	var raw [CD_SECTOR_SIZE]byte
	if err := r.ReadSectorRaw(lsn, raw[:]); err != nil {
		return nil, err
	}
	data := make([]byte, CD_DATA_SIZE)
	copy(data, raw[CD_XA_SYNC_HEADER:CD_XA_SYNC_HEADER+CD_DATA_SIZE])
	return data, nil
}

// ReadForm2 reads the 2336-byte subheader-plus-data portion of a sector,
// the layout XA stream files are extracted with.
func (r *CDReader) ReadForm2(lsn uint32) ([]byte, error) {
	var raw [CD_SECTOR_SIZE]byte
	if err := r.ReadSectorRaw(lsn, raw[:]); err != nil {
		return nil, err
	}
	data := make([]byte, CD_XA_DATA_SIZE)
	copy(data, raw[CD_SYNC_SIZE+CD_HEADER_SIZE:])
	return data, nil
}

// ValidateISO9660 checks the image for a data first track carrying an
// ISO 9660 filesystem at the fixed PVD sector.
func (r *CDReader) ValidateISO9660() error {
	if len(r.tracks) == 0 {
		return fmt.Errorf("cannot determine first track number")
	}
	if r.tracks[0].IsAudio() {
		return fmt.Errorf("first track (%d) is not a data track", r.tracks[0].Number)
	}

	data, err := r.ReadForm1(ISO_PVD_SECTOR)
	if err != nil {
		return err
	}
	if data[0] != 0x01 || string(data[1:6]) != "CD001" {
		return fmt.Errorf("no ISO 9660 filesystem on data track")
	}
	return nil
}

// ReadPVD reads and decodes the primary volume descriptor.
func (r *CDReader) ReadPVD() (*PVD, error) {
	data, err := r.ReadForm1(ISO_PVD_SECTOR)
	if err != nil {
		return nil, err
	}
	return ParsePVD(data)
}

// ReadDirectory reads a directory extent and decodes its records in
// on-disc order, "." and ".." included. Records never straddle a sector
// boundary; a zero length byte skips to the next sector.
func (r *CDReader) ReadDirectory(lsn uint32, sizeBytes uint32) ([]*DirRecord, error) {
	var records []*DirRecord
	sectors := (sizeBytes + ISO_BLOCKSIZE - 1) / ISO_BLOCKSIZE

	for sector := uint32(0); sector < sectors; sector++ {
		data, err := r.ReadForm1(lsn + sector)
		if err != nil {
			return nil, err
		}

		offset := 0
		for offset < ISO_BLOCKSIZE {
			rec, err := ParseDirRecord(data[offset:])
			if err != nil {
				return nil, fmt.Errorf("error reading ISO 9660 directory at sector %d: %w", lsn+sector, err)
			}
			if rec == nil {
				break
			}
			records = append(records, rec)
			offset += int(rec.Length)
		}
	}

	return records, nil
}
