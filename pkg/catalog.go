// Package pkg provides the ripper and builder logic for PlayStation disc
// images. This file contains the catalog model and its line-oriented
// parser. The catalog is the declarative description of the volume, the
// track layout and every directory record of the filesystem.
package pkg

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hansbonini/psximager/pkg/common"
	"github.com/hansbonini/psximager/pkg/psx"
)

// Catalog is the parsed form of a .cat file.
type Catalog struct {
	// Name of the file containing system area data
	SystemAreaFile string

	// Volume information
	SystemID            string
	VolumeID            string
	VolumeSetID         string
	PublisherID         string
	PreparerID          string
	ApplicationID       string
	CopyrightFileID     string
	AbstractFileID      string
	BibliographicFileID string

	// Dates
	CreationDate     psx.LTime
	ModificationDate psx.LTime
	ExpirationDate   psx.LTime
	EffectiveDate    psx.LTime

	// Default user/group IDs
	DefaultUID uint16
	DefaultGID uint16

	// Track layout
	TrackListing      []psx.Track
	Track1SectorCount uint32
	Track1PostgapType int
	AudioSectors      uint32
	StrictRebuild     bool

	// Root directory of the filesystem tree
	Root *DirNode
}

// NewCatalog returns a catalog with all dates zeroed.
func NewCatalog() *Catalog {
	return &Catalog{
		CreationDate:     psx.ZeroLTime(),
		ModificationDate: psx.ZeroLTime(),
		ExpirationDate:   psx.ZeroLTime(),
		EffectiveDate:    psx.ZeroLTime(),
	}
}

// catalogParser reads the catalog line by line.
type catalogParser struct {
	scanner *bufio.Scanner
}

// nextLine returns the next non-empty line with surrounding whitespace
// stripped, or "" at end of file.
func (p *catalogParser) nextLine() string {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line != "" {
			return line
		}
	}
	return ""
}

// checkDString warns about illegal d-characters, keeping the value.
func checkDString(s, description string) {
	for i := 0; i < len(s); i++ {
		if !common.IsDChar(s[i]) {
			common.LogWarn(common.WarnIllegalChar, s[i], description, s)
			break
		}
	}
}

// checkAString warns about illegal a-characters, keeping the value.
func checkAString(s, description string) {
	for i := 0; i < len(s); i++ {
		if !common.IsAChar(s[i]) {
			common.LogWarn(common.WarnIllegalChar, s[i], description, s)
			break
		}
	}
}

// checkFileName rejects identifiers with characters outside the d-set
// plus the dot separator.
func checkFileName(s, description string) error {
	for i := 0; i < len(s); i++ {
		if !common.IsDChar(s[i]) && s[i] != '.' {
			return fmt.Errorf("illegal character '%c' in %s \"%s\"", s[i], description, s)
		}
	}
	return nil
}

// checkLBN validates a requested start sector.
func checkLBN(s, itemName string) (uint32, error) {
	lbn, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid start LBN '%s' specified for '%s'", s, itemName)
	}
	if lbn <= psx.ISO_EVD_SECTOR || lbn >= psx.MAX_ISO_SECTORS {
		return 0, fmt.Errorf("start LBN '%s' of '%s' is outside the valid range %d..%d",
			s, itemName, psx.ISO_EVD_SECTOR+1, psx.MAX_ISO_SECTORS-1)
	}
	return uint32(lbn), nil
}

// entryAttrs carries the optional KEYWORD-value tuples of a catalog entry.
type entryAttrs struct {
	lbn       uint32
	gid       uint16
	uid       uint16
	atr       uint16
	atrs      uint16
	atrp      uint16
	date      string
	datep     string
	timezone  int
	timezonep int
	size      uint32
	hidden    bool
	zeroEDC   bool
	y2kSelf   bool
	y2kParent bool
}

// attrKeywords in longest-prefix-first order so that ATRS matches before
// ATR and TIMEZONES before TIMEZONE.
var attrKeywords = []string{
	"TIMEZONES", "TIMEZONEP", "TIMEZONE", "ZEROEDC", "Y2KBUG",
	"HIDDEN", "DATES", "DATEP", "DATE", "ATRS", "ATRP", "ATR",
	"SIZE", "GID", "UID",
}

func parseUint16Attr(value, keyword string) (uint16, error) {
	v, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s number '%s'", keyword, value)
	}
	return uint16(v), nil
}

func parseBoolAttr(value, keyword string) (bool, error) {
	switch value {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("invalid %s value '%s'", keyword, value)
}

func parseDateAttr(value, keyword string) (string, error) {
	if len(value) != 14 {
		return "", fmt.Errorf("invalid %s '%s'", keyword, value)
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return "", fmt.Errorf("invalid %s '%s'", keyword, value)
		}
	}
	return value, nil
}

// parseEntryAttrs parses the optional tokens following an entry name.
func parseEntryAttrs(name string, tokens []string) (entryAttrs, error) {
	var attrs entryAttrs

	for _, token := range tokens {
		if strings.HasPrefix(token, "@") {
			lbn, err := checkLBN(token[1:], name)
			if err != nil {
				return attrs, err
			}
			attrs.lbn = lbn
			continue
		}

		matched := false
		for _, keyword := range attrKeywords {
			if !strings.HasPrefix(token, keyword) {
				continue
			}
			value := token[len(keyword):]
			var err error
			switch keyword {
			case "GID":
				attrs.gid, err = parseUint16Attr(value, keyword)
			case "UID":
				attrs.uid, err = parseUint16Attr(value, keyword)
			case "ATR":
				attrs.atr, err = parseUint16Attr(value, keyword)
			case "ATRS":
				attrs.atrs, err = parseUint16Attr(value, keyword)
			case "ATRP":
				attrs.atrp, err = parseUint16Attr(value, keyword)
			case "DATE":
				attrs.date, err = parseDateAttr(value, keyword)
			case "DATES":
				attrs.date, err = parseDateAttr(value, keyword)
			case "DATEP":
				attrs.datep, err = parseDateAttr(value, keyword)
			case "TIMEZONE", "TIMEZONES":
				attrs.timezone, err = strconv.Atoi(value)
				if err != nil {
					err = fmt.Errorf("invalid timezone '%s'", value)
				}
			case "TIMEZONEP":
				attrs.timezonep, err = strconv.Atoi(value)
				if err != nil {
					err = fmt.Errorf("invalid timezone '%s'", value)
				}
			case "SIZE":
				var size uint64
				size, err = strconv.ParseUint(value, 10, 32)
				if err != nil {
					err = fmt.Errorf("invalid size '%s'", value)
				}
				attrs.size = uint32(size)
			case "HIDDEN":
				attrs.hidden, err = parseBoolAttr(value, keyword)
			case "ZEROEDC":
				attrs.zeroEDC, err = parseBoolAttr(value, keyword)
			case "Y2KBUG":
				var v int
				v, err = strconv.Atoi(value)
				if err != nil || v%10 > 1 || v/10 > 1 {
					err = fmt.Errorf("invalid Y2KBUG value '%s'", value)
				} else {
					attrs.y2kSelf = v%10 == 1
					attrs.y2kParent = v/10 == 1
				}
			}
			if err != nil {
				return attrs, err
			}
			matched = true
			break
		}
		if !matched {
			return attrs, fmt.Errorf("unrecognized attribute '%s' for '%s'", token, name)
		}
	}

	return attrs, nil
}

// bracketValue extracts the value of a "keyword [value]" volume line.
func bracketValue(line, keyword string) (string, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, keyword))
	if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

// parseSystemArea parses the "system_area" section.
func (p *catalogParser) parseSystemArea(cat *Catalog) error {
	for {
		line := p.nextLine()
		if line == "" {
			return fmt.Errorf("syntax error in catalog file: unterminated system_area section")
		}
		if line == "}" {
			return nil
		}

		if strings.HasPrefix(line, "file") {
			rest := strings.TrimSpace(strings.TrimPrefix(line, "file"))
			rest = strings.Trim(rest, "\"")
			if rest != "" {
				cat.SystemAreaFile = rest
				continue
			}
		}
		return fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in system_area section", line)
	}
}

// parseVolume parses the "volume" section.
func (p *catalogParser) parseVolume(cat *Catalog) error {
	for {
		line := p.nextLine()
		if line == "" {
			return fmt.Errorf("syntax error in catalog file: unterminated volume section")
		}
		if line == "}" {
			return nil
		}

		keyword := line
		if idx := strings.IndexAny(line, " \t"); idx >= 0 {
			keyword = line[:idx]
		}
		rest := strings.TrimSpace(line[len(keyword):])

		var err error
		switch keyword {
		case "system_id", "publisher_id", "preparer_id", "application_id":
			value, ok := bracketValue(line, keyword)
			if !ok {
				return fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in volume section", line)
			}
			checkAString(value, keyword)
			switch keyword {
			case "system_id":
				cat.SystemID = value
			case "publisher_id":
				cat.PublisherID = value
			case "preparer_id":
				cat.PreparerID = value
			case "application_id":
				cat.ApplicationID = value
			}

		case "volume_id", "volume_set_id", "copyright_file_id", "abstract_file_id", "bibliographic_file_id":
			value, ok := bracketValue(line, keyword)
			if !ok {
				return fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in volume section", line)
			}
			checkDString(value, keyword)
			switch keyword {
			case "volume_id":
				cat.VolumeID = value
			case "volume_set_id":
				cat.VolumeSetID = value
			case "copyright_file_id":
				cat.CopyrightFileID = value
			case "abstract_file_id":
				cat.AbstractFileID = value
			case "bibliographic_file_id":
				cat.BibliographicFileID = value
			}

		case "creation_date":
			cat.CreationDate, err = psx.ParseLTimeSpec(rest)
		case "modification_date":
			cat.ModificationDate, err = psx.ParseLTimeSpec(rest)
		case "expiration_date":
			cat.ExpirationDate, err = psx.ParseLTimeSpec(rest)
		case "effective_date":
			cat.EffectiveDate, err = psx.ParseLTimeSpec(rest)

		case "track_listing":
			value, ok := bracketValue(line, keyword)
			if !ok {
				return fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in volume section", line)
			}
			cat.TrackListing, err = decodeTrackListing(value)

		case "track1_sector_count":
			var v uint64
			v, err = strconv.ParseUint(rest, 10, 32)
			if err != nil {
				err = fmt.Errorf("'%s' is not a valid track1_sector_count integer", rest)
			}
			cat.Track1SectorCount = uint32(v)

		case "track1_postgap_type":
			cat.Track1PostgapType, err = strconv.Atoi(rest)
			if err != nil || cat.Track1PostgapType < 0 || cat.Track1PostgapType > 3 {
				err = fmt.Errorf("'%s' is not a valid track1_postgap_type", rest)
			}

		case "audio_sectors":
			var v uint64
			v, err = strconv.ParseUint(rest, 10, 32)
			if err != nil {
				err = fmt.Errorf("'%s' is not a valid audio_sectors integer", rest)
			}
			cat.AudioSectors = uint32(v)

		case "strict_rebuild":
			cat.StrictRebuild, err = parseBoolAttr(rest, keyword)

		case "default_uid":
			cat.DefaultUID, err = parseUint16Attr(rest, keyword)
		case "default_gid":
			cat.DefaultGID, err = parseUint16Attr(rest, keyword)

		default:
			return fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in volume section", line)
		}
		if err != nil {
			return err
		}
	}
}

// decodeTrackListing decodes the base64 CSV track rows of the catalog.
func decodeTrackListing(encoded string) ([]psx.Track, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid track_listing encoding: %w", err)
	}

	var tracks []psx.Track
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		track, err := psx.ParseTrackLine(line)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// encodeTrackListing is the inverse of decodeTrackListing.
func encodeTrackListing(tracks []psx.Track) string {
	var lines []string
	for _, t := range tracks {
		lines = append(lines, t.CatalogLine())
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(lines, "\n")))
}

// parseDir recursively parses a "dir" section into a DirNode.
func (p *catalogParser) parseDir(cat *Catalog, dirName, path string, parent *DirNode, attrs entryAttrs) (*DirNode, error) {
	dir := &DirNode{
		NodeInfo: NodeInfo{
			Name:                 dirName,
			Path:                 path,
			Parent:               parent,
			RequestedStartSector: attrs.lbn,
			GID:                  attrs.gid,
			UID:                  attrs.uid,
			Date:                 attrs.date,
			Timezone:             attrs.timezone,
			Hidden:               attrs.hidden,
			Y2KBugSelf:           attrs.y2kSelf,
			Y2KBugParent:         attrs.y2kParent,
		},
		AttrSelf:       attrs.atrs,
		AttrParent:     attrs.atrp,
		DateParent:     attrs.datep,
		TimezoneParent: attrs.timezonep,
	}

	for {
		line := p.nextLine()
		if line == "" {
			return nil, fmt.Errorf("syntax error in catalog file: unterminated directory section \"%s\"", dirName)
		}
		if line == "}" {
			break
		}

		fields := strings.Fields(line)
		keyword := fields[0]

		switch keyword {
		case "file", "xafile", "cddafile":
			if len(fields) < 2 {
				return nil, fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in directory section", line)
			}
			fileName := fields[1]
			if err := checkFileName(fileName, "file name"); err != nil {
				return nil, err
			}
			attrs, err := parseEntryAttrs(fileName, fields[2:])
			if err != nil {
				return nil, err
			}

			file := &FileNode{
				NodeInfo: NodeInfo{
					Name:                 fileName + ";1",
					Path:                 filepath.Join(path, fileName),
					Parent:               dir,
					RequestedStartSector: attrs.lbn,
					GID:                  attrs.gid,
					UID:                  attrs.uid,
					Date:                 attrs.date,
					Timezone:             attrs.timezone,
					Hidden:               attrs.hidden,
					Y2KBugSelf:           attrs.y2kSelf,
				},
				Attr:     attrs.atr,
				NodeSize: attrs.size,
				IsForm2:  keyword == "xafile",
				IsAudio:  keyword == "cddafile",
				ZeroEDC:  attrs.zeroEDC,
			}

			if file.IsAudio {
				// CDDA entries have no body in the data track; the recorded
				// size comes from the catalog and no space is allocated.
				file.Size = attrs.size
			} else {
				info, err := os.Stat(file.Path)
				if err != nil {
					return nil, fmt.Errorf("cannot open file %s: %w", file.Path, err)
				}
				size, err := common.SafeInt64ToUint32(info.Size())
				if err != nil {
					return nil, err
				}
				file.Size = size

				blockSize := uint32(psx.ISO_BLOCKSIZE)
				if file.IsForm2 {
					blockSize = psx.CD_XA_DATA_SIZE
				}
				file.NumSectors = (file.Size + blockSize - 1) / blockSize
				if file.NumSectors == 0 {
					file.NumSectors = 1 // empty files use one sector
				}
			}

			dir.Children = append(dir.Children, file)

		case "dir":
			if len(fields) < 3 || fields[len(fields)-1] != "{" {
				return nil, fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in directory section", line)
			}
			subDirName := fields[1]
			checkDString(subDirName, "directory name")
			attrs, err := parseEntryAttrs(subDirName, fields[2:len(fields)-1])
			if err != nil {
				return nil, err
			}

			subDir, err := p.parseDir(cat, subDirName, filepath.Join(path, subDirName), dir, attrs)
			if err != nil {
				return nil, err
			}
			dir.Children = append(dir.Children, subDir)

		default:
			return nil, fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized in directory section", line)
		}
	}

	dir.SortChildren()
	return dir, nil
}

// ParseCatalog parses a catalog file. fsBase is the directory holding the
// extracted filesystem tree the file entries refer to.
func ParseCatalog(path, fsBase string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog file %s: %w", path, err)
	}
	defer f.Close()

	cat := NewCatalog()
	parser := &catalogParser{scanner: bufio.NewScanner(f)}

	for {
		line := parser.nextLine()
		if line == "" {
			break // end of file
		}

		switch {
		case strings.HasPrefix(line, "system_area") && strings.HasSuffix(line, "{"):
			if err := parser.parseSystemArea(cat); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "volume") && strings.HasSuffix(line, "{"):
			if err := parser.parseVolume(cat); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "dir") && strings.HasSuffix(line, "{"):
			if cat.Root != nil {
				return nil, fmt.Errorf("more than one root directory section in catalog file")
			}
			fields := strings.Fields(line)
			attrs, err := parseEntryAttrs("root directory", fields[1:len(fields)-1])
			if err != nil {
				return nil, err
			}
			cat.Root, err = parser.parseDir(cat, "", fsBase, nil, attrs)
			if err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("syntax error in catalog file: \"%s\" unrecognized", line)
		}
	}
	if err := parser.scanner.Err(); err != nil {
		return nil, err
	}

	return cat, nil
}
