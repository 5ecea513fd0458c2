// Package pkg provides the ripper and builder logic for PlayStation disc
// images. This file contains the filesystem layout passes: directory size
// calculation, sector allocation (normal and strict), directory extent
// construction and path table construction. Their ordering is a contract:
// sizes, then allocation, then extents, then path tables.
package pkg

import (
	"fmt"
	"sort"

	"github.com/hansbonini/psximager/pkg/common"
	"github.com/hansbonini/psximager/pkg/psx"
)

// CalcDirSizes computes the extent size of every directory, honoring the
// rule that a record never straddles a 2048-byte sector boundary.
func CalcDirSizes(root *DirNode) {
	TraverseSorted(root, func(node FSNode) error {
		dir, ok := node.(*DirNode)
		if !ok {
			return nil
		}

		// "." and ".." records
		size := uint32(2 * psx.RecordSize(1, psx.XA_SYSTEM_USE_SIZE))

		// Records for all direct children
		for _, child := range dir.SortedChildren {
			recordSize := uint32(psx.RecordSize(len(child.Node().Name), psx.XA_SYSTEM_USE_SIZE))

			if size/psx.ISO_BLOCKSIZE != (size+recordSize)/psx.ISO_BLOCKSIZE {
				// Record would cross a sector boundary, add padding
				recordSize += (psx.ISO_BLOCKSIZE - size) % psx.ISO_BLOCKSIZE
			}

			size += recordSize
		}

		dir.NumSectors = (size + psx.ISO_BLOCKSIZE - 1) / psx.ISO_BLOCKSIZE
		return nil
	})
}

// AllocSectors assigns start sectors to every node in pre-order insertion
// order, the same order WriteData uses. A requested sector below the
// current one is ignored with a warning. CDDA placeholders keep their
// requested sector for the later directory-record fix-up but consume no
// track space. Returns the first sector past the allocated extents.
func AllocSectors(root *DirNode, startSector uint32) uint32 {
	currentSector := startSector

	Traverse(root, func(n FSNode) error {
		node := n.Node()
		requested := node.RequestedStartSector

		if file, ok := n.(*FileNode); ok && (file.IsAudio || IsDAFile(file.Name)) {
			requested = 0
		}

		if requested != 0 {
			if requested < currentSector {
				node.FirstSector = currentSector
				common.LogWarn(common.WarnSectorCollision, node.Path, node.FirstSector, requested)
			} else {
				node.FirstSector = requested
			}
		} else {
			node.FirstSector = currentSector
		}

		currentSector = node.FirstSector + node.NumSectors
		return nil
	})

	return currentSector
}

// AllocSectorsStrict lays every node back at its original sector. The
// tree is flattened and processed in ascending requested-sector order;
// files that have outgrown their recorded directory-record size are
// deferred and re-allocated contiguously past the end of the track, their
// requested sector updated so the directory record keeps pointing at the
// data. Returns the first sector past the allocated extents.
func AllocSectorsStrict(root *DirNode, startSector uint32) uint32 {
	nodes := Flatten(root)
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Node().RequestedStartSector < nodes[j].Node().RequestedStartSector
	})

	currentSector := startSector
	var overflowing []*FileNode

	for _, n := range nodes {
		node := n.Node()

		if file, ok := n.(*FileNode); ok {
			if file.IsAudio {
				continue
			}
			if file.NodeSize > 0 && sectorsForRecordedSize(file) < file.NumSectors {
				overflowing = append(overflowing, file)
				continue
			}
		}

		if node.RequestedStartSector != 0 {
			if node.RequestedStartSector < currentSector {
				node.FirstSector = currentSector
				common.LogWarn(common.WarnSectorCollision, node.Path, node.FirstSector, node.RequestedStartSector)
			} else {
				node.FirstSector = node.RequestedStartSector
			}
		} else {
			node.FirstSector = currentSector
		}

		currentSector = node.FirstSector + node.NumSectors
	}

	// Re-allocate the deferred files past the track end, in ascending
	// original-sector order (the slice is already sorted that way).
	for _, file := range overflowing {
		common.LogWarn(common.WarnStrictOverflow, file.Path)
		file.FirstSector = currentSector
		file.RequestedStartSector = currentSector
		currentSector += file.NumSectors
	}

	return currentSector
}

// sectorsForRecordedSize converts a file's recorded directory-record size
// into the sector count the original layout reserved for it.
func sectorsForRecordedSize(file *FileNode) uint32 {
	return common.GetSizeInSectors(file.NodeSize)
}

// nodeRecordTime resolves the recording time of a catalog entry, falling
// back to the volume creation date when the entry carries none.
func nodeRecordTime(cat *Catalog, digits string, timezone int, y2kBug bool) (psx.RecordTime, error) {
	if digits == "" {
		c := cat.CreationDate
		digits = c.Year + c.Month + c.Day + c.Hour + c.Minute + c.Second
		timezone = c.GmtOff
	}
	if digits == "00000000000000" {
		return psx.RecordTime{}, nil
	}
	return psx.DTimeFromDigits(digits, timezone, y2kBug)
}

// MakeDirectories builds the packed directory extent of every directory.
// sectorOffset is the difference between the rebuilt and the original
// data-track length; CDDA directory records have it added to their
// requested sector so the filesystem keeps pointing into the audio track.
func MakeDirectories(cat *Catalog, sectorOffset int) error {
	return TraverseSorted(cat.Root, func(node FSNode) error {
		dir, ok := node.(*DirNode)
		if !ok {
			if _, isFile := node.(*FileNode); !isFile {
				return fmt.Errorf("%s", common.ErrTreeCorrupt)
			}
			return nil
		}

		data := make([]byte, dir.NumSectors*psx.ISO_BLOCKSIZE)
		offset := 0

		parentSector := dir.FirstSector
		parentSize := dir.NumSectors * psx.ISO_BLOCKSIZE
		if dir.Parent != nil {
			parentSector = dir.Parent.FirstSector
			parentSize = dir.Parent.NumSectors * psx.ISO_BLOCKSIZE
		}

		timeSelf, err := nodeRecordTime(cat, dir.Date, dir.Timezone, dir.Y2KBugSelf)
		if err != nil {
			return err
		}
		timeParent, err := nodeRecordTime(cat, dir.DateParent, dir.TimezoneParent, dir.Y2KBugParent)
		if err != nil {
			return err
		}

		// "." and ".." head records
		offset += emitRecord(data[offset:], []byte{0x00},
			dir.FirstSector, dir.NumSectors*psx.ISO_BLOCKSIZE, timeSelf, psx.ISO_DIRECTORY,
			&psx.XAEntry{Attributes: dir.AttrSelf})
		offset += emitRecord(data[offset:], []byte{0x01},
			parentSector, parentSize, timeParent, psx.ISO_DIRECTORY,
			&psx.XAEntry{Attributes: dir.AttrParent})

		// Records for all children, sorted by name
		for _, child := range dir.SortedChildren {
			record, err := childRecord(cat, child, sectorOffset)
			if err != nil {
				return err
			}

			if offset/psx.ISO_BLOCKSIZE != (offset+len(record))/psx.ISO_BLOCKSIZE {
				// Record would cross a sector boundary, pad to the next one
				offset += (psx.ISO_BLOCKSIZE - offset%psx.ISO_BLOCKSIZE) % psx.ISO_BLOCKSIZE
			}
			copy(data[offset:], record)
			offset += len(record)
		}

		dir.Data = data
		return nil
	})
}

// emitRecord encodes one directory record into buf and returns its length.
func emitRecord(buf []byte, name []byte, extent, size uint32, t psx.RecordTime, flags byte, xa *psx.XAEntry) int {
	record := psx.EncodeDirRecord(name, extent, size, t, flags, xa)
	copy(buf, record)
	return len(record)
}

// childRecord encodes the directory record describing one child node.
func childRecord(cat *Catalog, child FSNode, sectorOffset int) ([]byte, error) {
	info := child.Node()

	t, err := nodeRecordTime(cat, info.Date, info.Timezone, info.Y2KBugSelf)
	if err != nil {
		return nil, err
	}

	switch n := child.(type) {
	case *FileNode:
		flags := byte(0)
		if n.Hidden {
			flags |= psx.ISO_EXISTENCE
		}

		xa := &psx.XAEntry{GroupID: n.GID, UserID: n.UID, Attributes: n.Attr}
		extent := n.FirstSector
		var size uint32

		switch {
		case n.IsAudio:
			// The body lives in an audio track; point the record past the
			// rebuilt data track and record the catalog size verbatim.
			extent = uint32(int(n.RequestedStartSector) + sectorOffset)
			n.FirstSector = extent
			size = n.NodeSize
		case n.IsForm2:
			xa.FileNum = 1
			size = n.NumSectors * psx.ISO_BLOCKSIZE
		default:
			size = n.Size
		}

		return psx.EncodeDirRecord([]byte(n.Name), extent, size, t, flags, xa), nil

	case *DirNode:
		flags := byte(psx.ISO_DIRECTORY)
		if n.Hidden {
			flags |= psx.ISO_EXISTENCE
		}
		xa := &psx.XAEntry{GroupID: n.GID, UserID: n.UID, Attributes: n.AttrSelf}
		size := n.NumSectors * psx.ISO_BLOCKSIZE
		return psx.EncodeDirRecord([]byte(n.Name), n.FirstSector, size, t, flags, xa), nil
	}

	return nil, fmt.Errorf("%s", common.ErrTreeCorrupt)
}

// BuildPathTables constructs the L- and M-format path tables, assigning
// every directory its record number in breadth-first sorted order.
func BuildPathTables(root *DirNode) (*psx.PathTable, error) {
	tables := psx.NewPathTable()

	err := TraverseBreadthFirstSorted(root, func(node FSNode) error {
		dir, ok := node.(*DirNode)
		if !ok {
			return nil
		}

		parentRecord := uint16(1)
		if dir.Parent != nil {
			parentRecord = dir.Parent.RecordNumber
		}

		record, err := tables.AddEntry(dir.Name, dir.FirstSector, parentRecord)
		if err != nil {
			return err
		}
		dir.RecordNumber = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tables, nil
}
