// Package pkg provides the ripper and builder logic for PlayStation disc
// images. This file contains the ripper: it analyzes the track layout,
// extracts audio tracks and the filesystem tree, classifies the data-track
// postgap and writes the catalog a later rebuild starts from.
package pkg

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hansbonini/psximager/pkg/common"
	"github.com/hansbonini/psximager/pkg/psx"
)

// Names of the rip byproducts kept next to the extracted tree.
const (
	psxRipDir      = "_PSXRIP"
	lastSectorName = "Last_sector.bin"
)

// Postgap classification patterns, matched against the uppercase hex dump
// of the last data-track sector.
var (
	postgapType1 = regexp.MustCompile(`^00FFFFFFFFFFFFFFFFFFFF00.{8}0000000000000000(00)*$`)
	postgapType2 = regexp.MustCompile(`^00FFFFFFFFFFFFFFFFFFFF00.{8}0000200000002000(00)*$`)
	postgapType3 = regexp.MustCompile(`^00FFFFFFFFFFFFFFFFFFFF00.{8}0000200000002000(00)*([0-9A-F]){8}$`)
)

// RipOptions control the behavior of a CDRipper.
type RipOptions struct {
	FixDates  bool // normalize Y2K dates instead of preserving the anomaly
	WriteLBNs bool // write LBNs for every entry into the catalog
	Strict    bool // mark the catalog for strict rebuild
	LBNTable  bool // print the LBN table instead of ripping
}

// CDRipper disassembles a disc image into catalog, system area, tree and
// audio tracks.
type CDRipper struct {
	opts RipOptions
}

// NewCDRipper creates a new ripper instance.
func NewCDRipper(opts RipOptions) *CDRipper {
	return &CDRipper{opts: opts}
}

// outputBase resolves the base path all rip outputs derive from: the
// catalog is <base>.cat, the system area <base>.sys and the tree <base>/.
func outputBase(inputPath, outputPath string) string {
	stripped := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	if outputPath == "" {
		return stripped
	}
	if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
		return filepath.Join(outputPath, filepath.Base(stripped))
	}
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
}

// Rip disassembles the image at inputPath into outputPath.
func (r *CDRipper) Rip(inputPath, outputPath string) error {
	base := outputBase(inputPath, outputPath)

	image, err := psx.OpenImage(inputPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToOpenImage, err)
	}
	defer image.Close()

	common.LogDebug(common.InfoAnalyzingImage, inputPath)

	if err := image.ValidateISO9660(); err != nil {
		return err
	}

	tracks := image.Tracks()
	track1 := tracks[0]
	common.LogDebug(common.DebugTrack1Sectors, track1.Sectors)

	var audioSectors uint32
	for _, track := range tracks[1:] {
		audioSectors += track.Sectors
	}
	common.LogDebug(common.DebugAudioSectors, audioSectors)

	if dir := filepath.Dir(base); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return common.FormatError(common.ErrFailedToCreateOutputFile, err)
		}
	}

	// Classify the postgap flavor from the last data-track sector
	postgapType, lastSector, err := r.classifyPostgap(image, track1)
	if err != nil {
		return err
	}
	common.LogDebug(common.DebugPostgapType, postgapType)
	if postgapType == 0 {
		if err := writeBlobFile(filepath.Join(base, psxRipDir, lastSectorName), lastSector); err != nil {
			return err
		}
	}

	// Extract audio tracks and pregaps as WAV files
	if err := r.extractAudioTracks(image, tracks, base); err != nil {
		return err
	}

	// Dump the system area
	sysName := base + ".sys"
	if err := r.dumpSystemArea(image, sysName); err != nil {
		return err
	}
	fmt.Printf("System area data written to %s\n", sysName)

	// Read the volume information and dump the filesystem
	pvd, err := image.ReadPVD()
	if err != nil {
		return common.FormatError(common.ErrFailedToReadPVD, err)
	}
	fmt.Printf("Volume ID = %s\n", pvd.VolumeID)

	catalogName := base + ".cat"
	catalogFile, err := os.Create(catalogName)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateCatalog, err)
	}
	defer catalogFile.Close()

	catalog := bufio.NewWriter(catalogFile)

	r.writeCatalogHeader(catalog, pvd, sysName, tracks, track1.Sectors, postgapType, audioSectors)

	fmt.Printf("Dumping filesystem to directory %s...\n", base)

	rootRecord, err := psx.ParseDirRecord(pvd.RootRecord)
	if err != nil || rootRecord == nil {
		return common.FormatError(common.ErrFailedToReadPVD, err)
	}

	if err := r.dumpFilesystem(image, catalog, rootRecord, base, "", "", 0); err != nil {
		return err
	}

	if err := catalog.Flush(); err != nil {
		return common.FormatError(common.ErrFailedToCreateCatalog, err)
	}
	fmt.Printf("Catalog written to %s\n", catalogName)

	return nil
}

// classifyPostgap reads the last sector of the data track and matches it
// against the known postgap flavors. Type 0 returns the raw sector so it
// can be kept for the rebuild.
func (r *CDRipper) classifyPostgap(image *psx.CDReader, track1 psx.Track) (int, []byte, error) {
	raw := make([]byte, psx.CD_SECTOR_SIZE)
	if err := image.ReadSectorRaw(track1.EndLSN, raw); err != nil {
		return 0, nil, err
	}

	dump := strings.ToUpper(hex.EncodeToString(raw))
	switch {
	case postgapType1.MatchString(dump):
		return 1, nil, nil
	case postgapType2.MatchString(dump):
		return 2, nil, nil
	case postgapType3.MatchString(dump):
		return 3, nil, nil
	}
	return 0, raw, nil
}

// writeBlobFile stores a raw byproduct, creating its directory on demand.
func writeBlobFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	return nil
}

// extractAudioTracks writes Track_NN.wav for every audio track and
// Pregap_NN.wav for every audio track with a pregap.
func (r *CDRipper) extractAudioTracks(image *psx.CDReader, tracks []psx.Track, base string) error {
	for _, track := range tracks {
		if !track.IsAudio() {
			continue
		}

		common.LogDebug(common.DebugTrackInfo, track.Number, track.Mode,
			track.StartLSN, track.Pregap, track.DataLSN, track.EndLSN, track.Sectors)

		if track.Pregap > 0 {
			name := filepath.Join(base, psxRipDir, fmt.Sprintf("Pregap_%02d.wav", track.Number))
			if err := r.extractWAV(image, name, track.StartLSN, track.Pregap); err != nil {
				return err
			}
		}

		name := filepath.Join(base, psxRipDir, fmt.Sprintf("Track_%02d.wav", track.Number))
		sectors := track.EndLSN - track.DataLSN + 1
		if err := r.extractWAV(image, name, track.DataLSN, sectors); err != nil {
			return err
		}
		common.LogDebug(common.InfoAudioTrackWritten, track.Number, name)
	}
	return nil
}

// extractWAV writes a run of raw audio sectors as a canonical WAV file.
func (r *CDRipper) extractWAV(image *psx.CDReader, path string, startLSN, sectors uint32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := common.WriteWAVHeader(w, sectors*psx.CD_SECTOR_SIZE); err != nil {
		return err
	}

	raw := make([]byte, psx.CD_SECTOR_SIZE)
	for i := uint32(0); i < sectors; i++ {
		if err := image.ReadSectorRaw(startLSN+i, raw); err != nil {
			return err
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return w.Flush()
}

// dumpSystemArea copies the 16 raw sectors before the volume descriptors.
func (r *CDRipper) dumpSystemArea(image *psx.CDReader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateSystemArea, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	raw := make([]byte, psx.CD_SECTOR_SIZE)
	for sector := uint32(0); sector < psx.SYSTEM_AREA_SECTORS; sector++ {
		if err := image.ReadSectorRaw(sector, raw); err != nil {
			return err
		}
		if _, err := w.Write(raw); err != nil {
			return common.FormatError(common.ErrFailedToCreateSystemArea, err)
		}
	}
	return w.Flush()
}

// fixLTime normalizes the century of a bugged long-format date.
func fixLTime(t psx.LTime) psx.LTime {
	if t.Year[0:2] == "00" && t.Day != "00" {
		if t.Year[2:4] >= "70" {
			t.Year = "19" + t.Year[2:4]
		} else {
			t.Year = "20" + t.Year[2:4]
		}
	}
	return t
}

// writeCatalogHeader emits the system_area and volume sections.
func (r *CDRipper) writeCatalogHeader(catalog *bufio.Writer, pvd *psx.PVD, sysName string,
	tracks []psx.Track, track1Sectors uint32, postgapType int, audioSectors uint32) {

	fmt.Fprintf(catalog, "system_area {\n")
	fmt.Fprintf(catalog, "  file \"%s\"\n", sysName)
	fmt.Fprintf(catalog, "}\n\n")

	dates := [4]psx.LTime{pvd.CreationDate, pvd.ModificationDate, pvd.ExpirationDate, pvd.EffectiveDate}
	if r.opts.FixDates {
		for i := range dates {
			dates[i] = fixLTime(dates[i])
		}
	}

	strict := 0
	if r.opts.Strict {
		strict = 1
	}

	fmt.Fprintf(catalog, "volume {\n")
	fmt.Fprintf(catalog, "  system_id [%s]\n", pvd.SystemID)
	fmt.Fprintf(catalog, "  volume_id [%s]\n", pvd.VolumeID)
	fmt.Fprintf(catalog, "  volume_set_id [%s]\n", pvd.VolumeSetID)
	fmt.Fprintf(catalog, "  publisher_id [%s]\n", pvd.PublisherID)
	fmt.Fprintf(catalog, "  preparer_id [%s]\n", pvd.PreparerID)
	fmt.Fprintf(catalog, "  application_id [%s]\n", pvd.ApplicationID)
	fmt.Fprintf(catalog, "  copyright_file_id [%s]\n", pvd.CopyrightFileID)
	fmt.Fprintf(catalog, "  abstract_file_id [%s]\n", pvd.AbstractFileID)
	fmt.Fprintf(catalog, "  bibliographic_file_id [%s]\n", pvd.BibliographicFileID)
	fmt.Fprintf(catalog, "  creation_date %s\n", dates[0].CatalogString())
	fmt.Fprintf(catalog, "  modification_date %s\n", dates[1].CatalogString())
	fmt.Fprintf(catalog, "  expiration_date %s\n", dates[2].CatalogString())
	fmt.Fprintf(catalog, "  effective_date %s\n", dates[3].CatalogString())
	fmt.Fprintf(catalog, "  track_listing [%s]\n", encodeTrackListing(tracks))
	fmt.Fprintf(catalog, "  track1_sector_count %d\n", track1Sectors)
	fmt.Fprintf(catalog, "  track1_postgap_type %d\n", postgapType)
	fmt.Fprintf(catalog, "  audio_sectors %d\n", audioSectors)
	fmt.Fprintf(catalog, "  strict_rebuild %d\n", strict)
	fmt.Fprintf(catalog, "  default_uid 0\n")
	fmt.Fprintf(catalog, "  default_gid 0\n")
	fmt.Fprintf(catalog, "}\n\n")
}

// y2kValue encodes the catalog Y2KBUG flags for a self/parent pair.
func y2kValue(self, parent bool) int {
	v := 0
	if self {
		v++
	}
	if parent {
		v += 10
	}
	return v
}

// entryIsBugged reports whether a record's raw year byte carries the Y2K
// mastering anomaly.
func entryIsBugged(t psx.RecordTime) bool {
	return t.Year < 70
}

// xaOf returns the record's XA entry, tolerating records without one.
func xaOf(rec *psx.DirRecord) psx.XAEntry {
	if rec.XA != nil {
		return *rec.XA
	}
	return psx.XAEntry{}
}

// dumpFilesystem recursively extracts one directory, extending the
// catalog with its records. inputPath is the slash-separated path inside
// the ISO filesystem, empty for the root.
func (r *CDRipper) dumpFilesystem(image *psx.CDReader, catalog *bufio.Writer, dirRecord *psx.DirRecord,
	outputPath, inputPath, dirName string, level int) error {

	common.LogDebug(common.DebugDumpingEntry, inputPath, dirName)

	records, err := image.ReadDirectory(dirRecord.ExtentLSN, dirRecord.Size)
	if err != nil {
		return common.FormatError(common.ErrFailedToReadDirectory, err)
	}
	if len(records) < 2 {
		return fmt.Errorf("ISO 9660 directory '%s' has no \".\" and \"..\" records", inputPath)
	}
	recSelf, recParent := records[0], records[1]

	outputDirName := filepath.Join(outputPath, dirName)
	if err := os.MkdirAll(outputDirName, 0755); err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}

	// Open the catalog record for the directory
	indent := strings.Repeat(" ", level*2)
	xaSelf, xaParent := xaOf(recSelf), xaOf(recParent)

	y2kSelf := entryIsBugged(recSelf.Time) && !r.opts.FixDates
	y2kParent := entryIsBugged(recParent.Time) && !r.opts.FixDates

	catalog.WriteString(indent + "dir")
	if dirName != "" {
		catalog.WriteString(" " + dirName)
	}
	if r.opts.WriteLBNs {
		fmt.Fprintf(catalog, " @%d", recSelf.ExtentLSN)
	}
	fmt.Fprintf(catalog, " GID%d", xaSelf.GroupID)
	fmt.Fprintf(catalog, " UID%d", xaSelf.UserID)
	fmt.Fprintf(catalog, " ATRS%d", xaSelf.Attributes)
	fmt.Fprintf(catalog, " ATRP%d", xaParent.Attributes)
	fmt.Fprintf(catalog, " DATES%s", psx.DigitsFromRecordTime(recSelf.Time))
	fmt.Fprintf(catalog, " DATEP%s", psx.DigitsFromRecordTime(recParent.Time))
	fmt.Fprintf(catalog, " TIMEZONES%d", recSelf.Time.GmtOff)
	fmt.Fprintf(catalog, " TIMEZONEP%d", recParent.Time.GmtOff)
	fmt.Fprintf(catalog, " HIDDEN%d", recSelf.Flags&psx.ISO_EXISTENCE)
	if v := y2kValue(y2kSelf, y2kParent); v != 0 {
		fmt.Fprintf(catalog, " Y2KBUG%d", v)
	}
	catalog.WriteString(" {\n")

	// Children in ascending sector order
	children := sortChildrenByLSN(records[2:])

	for _, rec := range children {
		entryName := rec.Name
		entryPath := entryName
		if inputPath != "" {
			entryPath = inputPath + "/" + entryName
		}

		if rec.IsDir() {
			if err := r.dumpFilesystem(image, catalog, rec, outputDirName, entryPath, entryName, level+1); err != nil {
				return err
			}
			continue
		}

		if err := r.dumpFile(image, catalog, rec, outputDirName, level+1); err != nil {
			return err
		}
	}

	// Close the catalog record for the directory
	catalog.WriteString(indent + "}\n")
	return nil
}

// sortChildrenByLSN orders directory entries by their extent sector.
func sortChildrenByLSN(records []*psx.DirRecord) []*psx.DirRecord {
	sorted := append([]*psx.DirRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExtentLSN < sorted[j].ExtentLSN
	})
	return sorted
}

// dumpFile extracts one file entry and writes its catalog record.
func (r *CDRipper) dumpFile(image *psx.CDReader, catalog *bufio.Writer, rec *psx.DirRecord,
	outputDirName string, level int) error {

	entryName := common.CleanFileName(rec.Name)
	xa := xaOf(rec)

	form2File := rec.XA != nil && xa.Attributes&(psx.XA_ATTR_MODE2FORM2|psx.XA_ATTR_INTERLEAVED) != 0
	cddaFile := rec.XA != nil && xa.Attributes&psx.XA_ATTR_CDDA != 0

	keyword := "file"
	switch {
	case cddaFile:
		keyword = "cddafile"
	case form2File:
		keyword = "xafile"
		common.LogDebug(common.DebugXAFileInfo, entryName, rec.Size,
			common.GetSizeInSectors(rec.Size), xa.Attributes)
	}

	y2kBug := entryIsBugged(rec.Time) && !r.opts.FixDates

	fmt.Fprintf(catalog, "%s%s %s", strings.Repeat(" ", level*2), keyword, entryName)
	if r.opts.WriteLBNs || cddaFile {
		fmt.Fprintf(catalog, " @%d", rec.ExtentLSN)
	}
	fmt.Fprintf(catalog, " GID%d", xa.GroupID)
	fmt.Fprintf(catalog, " UID%d", xa.UserID)
	fmt.Fprintf(catalog, " ATR%d", xa.Attributes)
	fmt.Fprintf(catalog, " DATE%s", psx.DigitsFromRecordTime(rec.Time))
	fmt.Fprintf(catalog, " TIMEZONE%d", rec.Time.GmtOff)
	fmt.Fprintf(catalog, " SIZE%d", rec.Size)
	fmt.Fprintf(catalog, " HIDDEN%d", rec.Flags&psx.ISO_EXISTENCE)

	if cddaFile {
		// The body lives in an audio track, nothing to extract
		if v := y2kValue(y2kBug, false); v != 0 {
			fmt.Fprintf(catalog, " Y2KBUG%d", v)
		}
		catalog.WriteString("\n")
		return nil
	}

	outputFileName := filepath.Join(outputDirName, entryName)
	zeroEDC, err := r.extractFile(image, rec, form2File, outputFileName)
	if err != nil {
		return err
	}

	if form2File {
		edc := 0
		if zeroEDC {
			edc = 1
		}
		fmt.Fprintf(catalog, " ZEROEDC%d", edc)
	}
	if v := y2kValue(y2kBug, false); v != 0 {
		fmt.Fprintf(catalog, " Y2KBUG%d", v)
	}
	catalog.WriteString("\n")
	return nil
}

// extractFile copies a file body out of the image. Form 1 payloads are
// truncated to the recorded size; Form 2 files keep every 2336-byte
// sector. The returned flag reports whether a Form 2 stream carries
// zeroed EDC fields.
func (r *CDRipper) extractFile(image *psx.CDReader, rec *psx.DirRecord, form2File bool, outputFileName string) (bool, error) {
	f, err := os.Create(outputFileName)
	if err != nil {
		return false, common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	secsize := common.GetSizeInSectors(rec.Size)
	zeroEDC := false

	if form2File {
		raw := make([]byte, psx.CD_SECTOR_SIZE)
		for sector := uint32(0); sector < secsize; sector++ {
			if err := image.ReadSectorRaw(rec.ExtentLSN+sector, raw); err != nil {
				return false, err
			}
			if raw[18]&psx.SM_FORM2 != 0 &&
				raw[2348] == 0 && raw[2349] == 0 && raw[2350] == 0 && raw[2351] == 0 {
				zeroEDC = true
			}
			if _, err := w.Write(raw[psx.CD_SYNC_SIZE+psx.CD_HEADER_SIZE:]); err != nil {
				return false, common.FormatError(common.ErrFailedToCreateOutputFile, err)
			}
		}
	} else {
		remaining := rec.Size
		for sector := uint32(0); sector < secsize; sector++ {
			data, err := image.ReadForm1(rec.ExtentLSN + sector)
			if err != nil {
				return false, err
			}
			chunk := uint32(psx.ISO_BLOCKSIZE)
			if remaining < chunk {
				chunk = remaining
			}
			if _, err := w.Write(data[:chunk]); err != nil {
				return false, common.FormatError(common.ErrFailedToCreateOutputFile, err)
			}
			remaining -= chunk
		}
	}

	return zeroEDC, w.Flush()
}

// PrintLBNTable prints the LBN/size/type table of the image.
func (r *CDRipper) PrintLBNTable(inputPath string) error {
	image, err := psx.OpenImage(inputPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToOpenImage, err)
	}
	defer image.Close()

	if err := image.ValidateISO9660(); err != nil {
		return err
	}

	pvd, err := image.ReadPVD()
	if err != nil {
		return common.FormatError(common.ErrFailedToReadPVD, err)
	}
	rootRecord, err := psx.ParseDirRecord(pvd.RootRecord)
	if err != nil || rootRecord == nil {
		return common.FormatError(common.ErrFailedToReadPVD, err)
	}

	fmt.Printf("%8s %8s %8s T Path\n", "LBN", "NumSec", "Size")
	return r.printLBNTableDir(image, rootRecord, "")
}

// printLBNTableDir prints one directory and recurses into subdirectories.
func (r *CDRipper) printLBNTableDir(image *psx.CDReader, dirRecord *psx.DirRecord, inputPath string) error {
	records, err := image.ReadDirectory(dirRecord.ExtentLSN, dirRecord.Size)
	if err != nil {
		return common.FormatError(common.ErrFailedToReadDirectory, err)
	}
	if len(records) < 2 {
		return fmt.Errorf("ISO 9660 directory '%s' has no \".\" and \"..\" records", inputPath)
	}

	recSelf := records[0]
	fmt.Printf("%08x %08x %08x d %s\n", recSelf.ExtentLSN,
		common.GetSizeInSectors(recSelf.Size), recSelf.Size, inputPath)

	for _, rec := range sortChildrenByLSN(records[2:]) {
		entryName := common.CleanFileName(rec.Name)
		entryPath := entryName
		if inputPath != "" {
			entryPath = inputPath + "/" + entryName
		}

		if rec.IsDir() {
			if err := r.printLBNTableDir(image, rec, entryPath); err != nil {
				return err
			}
			continue
		}

		fileSize := rec.Size
		typeChar := 'f'
		if rec.XA != nil {
			if rec.XA.Attributes&(psx.XA_ATTR_MODE2FORM2|psx.XA_ATTR_INTERLEAVED) != 0 {
				typeChar = 'x'
				fileSize = common.GetSizeInSectors(rec.Size) * psx.CD_XA_DATA_SIZE
			}
			if rec.XA.Attributes&psx.XA_ATTR_CDDA != 0 {
				typeChar = 'a'
			}
		}

		fmt.Printf("%08x %08x %08x %c %s\n", rec.ExtentLSN,
			common.GetSizeInSectors(rec.Size), fileSize, typeChar, entryPath)
	}

	return nil
}
