// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the cue sheet parser used as the table-of-contents
// source when opening a .bin/.cue image pair.
package psx

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Track describes one track of a disc image in the global LSN space
// obtained by concatenating the backing files of the cue sheet.
type Track struct {
	Number   int
	Mode     string // "MODE2/2352" or "AUDIO"
	StartLSN uint32 // first sector of the track (INDEX 00 when present)
	Pregap   uint32 // sectors between INDEX 00 and INDEX 01
	DataLSN  uint32 // INDEX 01 sector
	EndLSN   uint32 // last sector of the track
	Sectors  uint32 // total sectors including the pregap
	BinFile  string // backing file path
}

// CueSheet is a parsed cue sheet with its tracks resolved to the global
// LSN space.
type CueSheet struct {
	Path     string
	BinFiles []string
	Tracks   []Track
}

// cueTrack is the per-file intermediate state gathered while scanning.
type cueTrack struct {
	number  int
	mode    string
	fileIdx int
	index0  int64 // file-relative frame of INDEX 00, -1 if absent
	index1  int64 // file-relative frame of INDEX 01, -1 if absent
}

// resolveBinFile locates a FILE reference next to the cue sheet, accepting
// a bare basename when the recorded path does not exist.
func resolveBinFile(cueDir, name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(cueDir, name)
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	base := filepath.Join(cueDir, filepath.Base(name))
	if _, err := os.Stat(base); err == nil {
		return base, nil
	}
	return "", fmt.Errorf("bin file %s does not exist or is not readable", name)
}

// parseCueTimestamp parses an "mm:ss:ff" timestamp into a frame count.
func parseCueTimestamp(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid cue timestamp '%s'", s)
	}
	m, err1 := strconv.Atoi(parts[0])
	sec, err2 := strconv.Atoi(parts[1])
	f, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("invalid cue timestamp '%s'", s)
	}
	return int64((m*60+sec)*75 + f), nil
}

// ParseCueSheet parses a cue sheet and resolves every track to the global
// LSN space of the concatenated backing files.
func ParseCueSheet(cuePath string) (*CueSheet, error) {
	f, err := os.Open(cuePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open cue file %s: %w", cuePath, err)
	}
	defer f.Close()

	cueDir := filepath.Dir(cuePath)
	sheet := &CueSheet{Path: cuePath}

	var tracks []cueTrack
	fileIdx := -1

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "FILE":
			// Recover the quoted file name
			line := strings.TrimSpace(scanner.Text())
			name := ""
			if parts := strings.Split(line, "\""); len(parts) >= 2 {
				name = parts[1]
			} else if len(fields) >= 2 {
				name = fields[1]
			}
			binPath, err := resolveBinFile(cueDir, name)
			if err != nil {
				return nil, err
			}
			sheet.BinFiles = append(sheet.BinFiles, binPath)
			fileIdx++

		case "TRACK":
			if len(fields) < 3 || fileIdx < 0 {
				return nil, fmt.Errorf("malformed TRACK line in %s", cuePath)
			}
			number, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("invalid track number '%s'", fields[1])
			}
			tracks = append(tracks, cueTrack{
				number:  number,
				mode:    strings.ToUpper(fields[2]),
				fileIdx: fileIdx,
				index0:  -1,
				index1:  -1,
			})

		case "INDEX":
			if len(fields) < 3 || len(tracks) == 0 {
				return nil, fmt.Errorf("malformed INDEX line in %s", cuePath)
			}
			frame, err := parseCueTimestamp(fields[2])
			if err != nil {
				return nil, err
			}
			t := &tracks[len(tracks)-1]
			switch fields[1] {
			case "00":
				t.index0 = frame
			case "01":
				t.index1 = frame
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(sheet.BinFiles) == 0 || len(tracks) == 0 {
		return nil, fmt.Errorf("cue sheet %s has no usable FILE/TRACK entries", cuePath)
	}

	// Sector count and global start LSN of every backing file
	fileSectors := make([]uint32, len(sheet.BinFiles))
	fileStart := make([]uint32, len(sheet.BinFiles))
	var total uint32
	for i, binPath := range sheet.BinFiles {
		info, err := os.Stat(binPath)
		if err != nil {
			return nil, fmt.Errorf("cannot stat bin file %s: %w", binPath, err)
		}
		fileStart[i] = total
		fileSectors[i] = uint32(info.Size() / CD_SECTOR_SIZE)
		total += fileSectors[i]
	}

	// Resolve file-relative indexes to global LSNs. Within one file, a
	// track ends where the next track of the same file starts.
	for i, t := range tracks {
		if t.index1 < 0 {
			return nil, fmt.Errorf("track %02d has no INDEX 01", t.number)
		}

		start := t.index1
		pregap := int64(0)
		if t.index0 >= 0 {
			start = t.index0
			pregap = t.index1 - t.index0
		}

		end := int64(fileSectors[t.fileIdx]) // exclusive, file-relative
		if i+1 < len(tracks) && tracks[i+1].fileIdx == t.fileIdx {
			next := tracks[i+1]
			if next.index0 >= 0 {
				end = next.index0
			} else {
				end = next.index1
			}
		}

		base := int64(fileStart[t.fileIdx])
		sheet.Tracks = append(sheet.Tracks, Track{
			Number:   t.number,
			Mode:     t.mode,
			StartLSN: uint32(base + start),
			Pregap:   uint32(pregap),
			DataLSN:  uint32(base + t.index1),
			EndLSN:   uint32(base + end - 1),
			Sectors:  uint32(end - start),
			BinFile:  sheet.BinFiles[t.fileIdx],
		})
	}

	return sheet, nil
}

// IsAudio reports whether the track is a Red Book audio track.
func (t Track) IsAudio() bool {
	return t.Mode == "AUDIO"
}

// CatalogLine formats the track as one line of the catalog track listing.
func (t Track) CatalogLine() string {
	return fmt.Sprintf("%d,%s,%d,%d,%d,%d,%d",
		t.Number, t.Mode, t.StartLSN, t.Pregap, t.DataLSN, t.EndLSN, t.Sectors)
}

// ParseTrackLine parses one decoded line of the catalog track listing.
func ParseTrackLine(line string) (Track, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 7 {
		return Track{}, fmt.Errorf("malformed track listing line '%s'", line)
	}
	number, err := strconv.Atoi(parts[0])
	if err != nil {
		return Track{}, fmt.Errorf("invalid track number '%s'", parts[0])
	}
	var nums [5]uint32
	for i, p := range parts[2:] {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Track{}, fmt.Errorf("invalid track listing value '%s'", p)
		}
		nums[i] = uint32(v)
	}
	return Track{
		Number:   number,
		Mode:     parts[1],
		StartLSN: nums[0],
		Pregap:   nums[1],
		DataLSN:  nums[2],
		EndLSN:   nums[3],
		Sectors:  nums[4],
	}, nil
}
