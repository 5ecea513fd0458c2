// Package pkg provides the ripper and builder logic for PlayStation disc
// images. This file contains the builder: it parses a catalog, lays out
// the filesystem, synthesizes raw Mode 2 sectors and writes the final
// mixed-mode image with its postgap and audio tracks.
package pkg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hansbonini/psximager/pkg/common"
	"github.com/hansbonini/psximager/pkg/psx"
)

// BuildOptions control the behavior of a CDBuilder.
type BuildOptions struct {
	WriteCueFile bool
}

// CDBuilder assembles a disc image from a catalog and directory tree.
type CDBuilder struct {
	opts BuildOptions
}

// NewCDBuilder creates a new builder instance.
func NewCDBuilder(opts BuildOptions) *CDBuilder {
	return &CDBuilder{opts: opts}
}

// imageWriter emits raw sectors sequentially, tracking the current LSN so
// the written layout matches the allocator's.
type imageWriter struct {
	w             *bufio.Writer
	sector        [psx.CD_SECTOR_SIZE]byte
	currentSector uint32
}

// writeRaw writes one pre-built raw sector.
func (iw *imageWriter) writeRaw(buf []byte) error {
	if _, err := iw.w.Write(buf[:psx.CD_SECTOR_SIZE]); err != nil {
		return common.FormatError(common.ErrFailedToWriteImage, err)
	}
	iw.currentSector++
	return nil
}

// writeMode2 synthesizes and writes one Mode 2 sector at the current LSN.
// zeroEDC clears the checksum afterwards when the sector came out Form 2.
func (iw *imageWriter) writeMode2(data []byte, fileNo, channel, submode, codingInfo byte, zeroEDC bool) error {
	psx.MakeMode2(iw.sector[:], data, iw.currentSector, fileNo, channel, submode, codingInfo)
	if zeroEDC && psx.IsForm2(iw.sector[:]) {
		psx.ZeroEDC(iw.sector[:])
	}
	return iw.writeRaw(iw.sector[:])
}

// emptyForm2 is the payload of a gap sector.
var emptyForm2 [psx.CD_XA_FORM2_SIZE]byte

// writeGap emits empty Form 2 sectors until the given sector is reached.
func (iw *imageWriter) writeGap(until uint32) error {
	for iw.currentSector < until {
		if err := iw.writeMode2(emptyForm2[:], 0, 0, psx.SM_FORM2, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// Build reads the catalog at inputPath and writes the image to outputPath.
// Empty or extension-less paths get the conventional .cat/.bin suffixes.
func (b *CDBuilder) Build(inputPath, outputPath string) error {
	catalogName := inputPath
	if filepath.Ext(catalogName) == "" {
		catalogName += ".cat"
	}
	fsBase := strings.TrimSuffix(catalogName, filepath.Ext(catalogName))

	if outputPath == "" {
		outputPath = fsBase
	}
	imageName := outputPath
	if filepath.Ext(imageName) != ".bin" {
		imageName = strings.TrimSuffix(imageName, filepath.Ext(imageName)) + ".bin"
	}

	fmt.Printf("Reading catalog file %s...\n", catalogName)
	fmt.Printf("Reading filesystem from directory %s...\n", fsBase)

	cat, err := ParseCatalog(catalogName, fsBase)
	if err != nil {
		return common.FormatError(common.ErrFailedToParseCatalog, err)
	}
	if cat.Root == nil {
		return fmt.Errorf("no root directory specified in catalog file")
	}

	// Layout passes: sizes, allocation, directory extents, path tables
	CalcDirSizes(cat.Root)

	var currentSector uint32
	if cat.StrictRebuild {
		currentSector = AllocSectorsStrict(cat.Root, psx.ISO_ROOT_DIR_SECTOR)
	} else {
		currentSector = AllocSectors(cat.Root, psx.ISO_ROOT_DIR_SECTOR)
	}

	volumeSize := currentSector + psx.POSTGAP_SECTORS

	// Offset between the rebuilt and the original data-track length; CDDA
	// directory entries are shifted by it so they still point at their
	// audio content.
	sectorOffset := 0
	if cat.Track1SectorCount > psx.POSTGAP_SECTORS {
		sectorOffset = int(volumeSize) - int(cat.Track1SectorCount)
	}

	volumeSize += cat.AudioSectors

	if volumeSize > psx.MAX_ISO_SECTORS {
		common.LogWarn(common.WarnImageTooLarge, psx.MAX_ISO_SECTORS*psx.CD_SECTOR_SIZE/(1024*1024))
	}

	if err := MakeDirectories(cat, sectorOffset); err != nil {
		return err
	}

	tables, err := BuildPathTables(cat.Root)
	if err != nil {
		return err
	}

	if common.VerboseMode {
		logAllocation(cat.Root)
	}

	// Create the image file
	imageFile, err := os.Create(imageName)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateImage, err)
	}
	defer imageFile.Close()

	iw := &imageWriter{w: bufio.NewWriterSize(imageFile, 1<<20)}

	common.LogDebug(common.InfoWritingSystemArea)
	if err := b.writeSystemArea(iw, cat); err != nil {
		return err
	}

	common.LogDebug(common.InfoWritingDescriptors)
	if err := b.writeDescriptors(iw, cat, tables, volumeSize); err != nil {
		return err
	}

	if err := b.writeData(iw, cat); err != nil {
		return err
	}

	common.LogDebug(common.InfoWritingPostgap, psx.POSTGAP_SECTORS, cat.Track1PostgapType)
	if err := b.writePostgap(iw, cat, fsBase); err != nil {
		return err
	}

	if err := b.appendAudioTracks(iw, cat, fsBase); err != nil {
		return err
	}

	if err := iw.w.Flush(); err != nil {
		return common.FormatError(common.ErrFailedToWriteImage, err)
	}
	if err := imageFile.Close(); err != nil {
		return common.FormatError(common.ErrFailedToWriteImage, err)
	}

	fmt.Printf("Image file written to %s\n", imageName)

	if b.opts.WriteCueFile {
		cueName := strings.TrimSuffix(imageName, ".bin") + ".cue"
		if err := b.writeCueSheet(cat, imageName, cueName, sectorOffset); err != nil {
			return err
		}
		fmt.Printf("Cue file written to %s\n", cueName)
	}

	return nil
}

// logAllocation prints the allocation of every node.
func logAllocation(root *DirNode) {
	Traverse(root, func(node FSNode) error {
		switch n := node.(type) {
		case *FileNode:
			common.LogDebug(common.DebugFileAllocation, n.Path, n.NumSectors, n.FirstSector, n.Size)
		case *DirNode:
			common.LogDebug(common.DebugDirAllocation, n.Path, n.NumSectors, n.FirstSector, n.RecordNumber)
		}
		return nil
	})
}

// writeSystemArea writes the 16 raw sectors preceding the volume
// descriptors, copying them from the catalog's system area file when one
// is named and zero-filling the rest.
func (b *CDBuilder) writeSystemArea(iw *imageWriter, cat *Catalog) error {
	data := make([]byte, psx.SYSTEM_AREA_SECTORS*psx.CD_SECTOR_SIZE)

	if cat.SystemAreaFile != "" {
		f, err := os.Open(cat.SystemAreaFile)
		if err != nil {
			return common.FormatError(common.ErrFailedToOpenSystemArea, err)
		}
		defer f.Close()

		if _, err := io.ReadFull(f, data); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return common.FormatError(common.ErrFailedToOpenSystemArea, err)
		}
	}

	for sector := 0; sector < psx.SYSTEM_AREA_SECTORS; sector++ {
		if err := iw.writeRaw(data[sector*psx.CD_SECTOR_SIZE:]); err != nil {
			return err
		}
	}
	return nil
}

// writeDescriptors writes the PVD, the set terminator and the four path
// table copies at their fixed sectors.
func (b *CDBuilder) writeDescriptors(iw *imageWriter, cat *Catalog, tables *psx.PathTable, volumeSize uint32) error {
	if err := iw.writeGap(psx.ISO_PVD_SECTOR); err != nil {
		return err
	}

	rootTime, err := nodeRecordTime(cat, "", 0, false)
	if err != nil {
		return err
	}
	rootRecord := psx.EncodeDirRecord([]byte{0x00},
		psx.ISO_ROOT_DIR_SECTOR, cat.Root.NumSectors*psx.ISO_BLOCKSIZE,
		rootTime, psx.ISO_DIRECTORY, nil)

	pvd := &psx.PVD{
		SystemID:            cat.SystemID,
		VolumeID:            cat.VolumeID,
		VolumeSpaceSize:     volumeSize,
		VolumeSetID:         cat.VolumeSetID,
		PublisherID:         cat.PublisherID,
		PreparerID:          cat.PreparerID,
		ApplicationID:       cat.ApplicationID,
		CopyrightFileID:     cat.CopyrightFileID,
		AbstractFileID:      cat.AbstractFileID,
		BibliographicFileID: cat.BibliographicFileID,
		PathTableSize:       uint32(tables.Size()),
		TypeLPathTable:      psx.ISO_PATH_TABLE_SECTOR,
		OptTypeLPathTable:   psx.ISO_PATH_TABLE_SECTOR + 1,
		TypeMPathTable:      psx.ISO_PATH_TABLE_SECTOR + 2,
		OptTypeMPathTable:   psx.ISO_PATH_TABLE_SECTOR + 3,
		RootRecord:          rootRecord,
		CreationDate:        cat.CreationDate,
		ModificationDate:    cat.ModificationDate,
		ExpirationDate:      cat.ExpirationDate,
		EffectiveDate:       cat.EffectiveDate,
	}

	if err := iw.writeMode2(pvd.Encode(), 0, 0, psx.SM_DATA|psx.SM_EOR, 0, false); err != nil {
		return err
	}
	if err := iw.writeMode2(psx.EncodeEVD(), 0, 0, psx.SM_DATA|psx.SM_EOF|psx.SM_EOR, 0, false); err != nil {
		return err
	}

	common.LogDebug(common.InfoWritingPathTables)
	lTable := make([]byte, psx.ISO_BLOCKSIZE)
	mTable := make([]byte, psx.ISO_BLOCKSIZE)
	copy(lTable, tables.LTable())
	copy(mTable, tables.MTable())

	for _, table := range [][]byte{lTable, lTable, mTable, mTable} {
		if err := iw.writeMode2(table, 0, 0, psx.SM_DATA|psx.SM_EOF|psx.SM_EOR, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// writeData writes every directory extent and file body in allocation
// order, emitting empty Form 2 gap sectors between extents.
func (b *CDBuilder) writeData(iw *imageWriter, cat *Catalog) error {
	return Traverse(cat.Root, func(node FSNode) error {
		switch n := node.(type) {
		case *FileNode:
			if n.IsAudio {
				// The track is appended after the data track
				return nil
			}
			return b.writeFile(iw, n)

		case *DirNode:
			if err := iw.writeGap(n.FirstSector); err != nil {
				return err
			}
			for sector := uint32(0); sector < n.NumSectors; sector++ {
				submode := byte(psx.SM_DATA)
				if sector == n.NumSectors-1 {
					submode |= psx.SM_EOF | psx.SM_EOR // last sector
				}
				data := n.Data[sector*psx.ISO_BLOCKSIZE : (sector+1)*psx.ISO_BLOCKSIZE]
				if err := iw.writeMode2(data, 0, 0, submode, 0, false); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("%s", common.ErrTreeCorrupt)
	})
}

// writeFile streams one file body into the image. Form 1 files are packed
// into data sectors; Form 2 files carry their own subheaders in the first
// 8 bytes of every 2336-byte chunk.
func (b *CDBuilder) writeFile(iw *imageWriter, file *FileNode) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("cannot open file %s: %w", file.Path, err)
	}
	defer f.Close()

	common.LogDebug(common.DebugWritingFile, file.Path)

	if err := iw.writeGap(file.FirstSector); err != nil {
		return err
	}

	blockSize := psx.ISO_BLOCKSIZE
	if file.IsForm2 {
		blockSize = psx.CD_XA_DATA_SIZE
	}
	chunk := make([]byte, blockSize)

	for sector := uint32(0); sector < file.NumSectors; sector++ {
		for i := range chunk {
			chunk[i] = 0
		}
		if _, err := io.ReadFull(f, chunk); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("cannot read file %s: %w", file.Path, err)
		}

		if file.IsForm2 {
			err = iw.writeMode2(chunk[psx.CD_SUBHEADER_SIZE:],
				chunk[0], chunk[1], chunk[2], chunk[3], file.ZeroEDC)
		} else {
			submode := byte(psx.SM_DATA)
			if sector == file.NumSectors-1 {
				submode |= psx.SM_EOF | psx.SM_EOR // last sector
			}
			err = iw.writeMode2(chunk, 0, 0, submode, 0, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writePostgap writes the 150 postgap sectors trailing the data track,
// reproducing the flavor classified during the rip.
func (b *CDBuilder) writePostgap(iw *imageWriter, cat *Catalog, fsBase string) error {
	// Type 0 replays the saved raw last sector when one was kept
	if cat.Track1PostgapType == 0 {
		blobPath := filepath.Join(fsBase, psxRipDir, lastSectorName)
		blob, err := os.ReadFile(blobPath)
		if err == nil && len(blob) == psx.CD_SECTOR_SIZE {
			raw := make([]byte, psx.CD_SECTOR_SIZE)
			copy(raw, blob)
			for i := 0; i < psx.POSTGAP_SECTORS; i++ {
				msf := psx.HeaderMSF(iw.currentSector)
				copy(raw[12:15], msf[:])
				if err := iw.writeRaw(raw); err != nil {
					return err
				}
			}
			return nil
		}
		common.LogWarn(common.WarnNoPostgapBlob)
	}

	var form1Payload [psx.ISO_BLOCKSIZE]byte
	var form2Payload [psx.CD_XA_FORM2_SIZE]byte

	for i := 0; i < psx.POSTGAP_SECTORS; i++ {
		var err error
		switch cat.Track1PostgapType {
		case 2:
			err = iw.writeMode2(form2Payload[:], 0, 0, psx.SM_FORM2, 0, true)
		case 3:
			err = iw.writeMode2(form2Payload[:], 0, 0, psx.SM_FORM2, 0, false)
		default: // type 1, and type 0 without a saved sector
			err = iw.writeMode2(form1Payload[:], 0, 0, 0, 0, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// appendAudioTracks streams the pregap and payload of every audio track
// after the postgap, stripping the WAV headers.
func (b *CDBuilder) appendAudioTracks(iw *imageWriter, cat *Catalog, fsBase string) error {
	for _, track := range cat.TrackListing {
		if !track.IsAudio() {
			continue
		}

		common.LogDebug(common.InfoAppendingTrack, track.Number)

		if track.Pregap > 0 {
			pregapPath := filepath.Join(fsBase, psxRipDir, fmt.Sprintf("Pregap_%02d.wav", track.Number))
			if _, err := os.Stat(pregapPath); err == nil {
				if err := b.appendWAVPayload(iw, pregapPath); err != nil {
					return err
				}
			} else {
				common.LogWarn(common.WarnPregapMissing, pregapPath)
				if err := b.appendSilence(iw, track.Pregap); err != nil {
					return err
				}
			}
		}

		trackPath := filepath.Join(fsBase, psxRipDir, fmt.Sprintf("Track_%02d.wav", track.Number))
		if err := b.appendWAVPayload(iw, trackPath); err != nil {
			return common.FormatError(common.ErrFailedToAppendAudio, err)
		}
	}
	return nil
}

// appendWAVPayload streams the PCM payload of a WAV file into the image.
func (b *CDBuilder) appendWAVPayload(iw *imageWriter, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := common.SkipWAVHeader(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := iw.w.Write(buf[:n]); werr != nil {
				return common.FormatError(common.ErrFailedToWriteImage, werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// appendSilence writes the given number of zero audio sectors.
func (b *CDBuilder) appendSilence(iw *imageWriter, sectors uint32) error {
	var zero [psx.CD_SECTOR_SIZE]byte
	for i := uint32(0); i < sectors; i++ {
		if _, err := iw.w.Write(zero[:]); err != nil {
			return common.FormatError(common.ErrFailedToWriteImage, err)
		}
	}
	return nil
}

// writeCueSheet emits the cue sheet describing the rebuilt image. Audio
// track timestamps are shifted by the data-track length difference.
func (b *CDBuilder) writeCueSheet(cat *Catalog, imageName, cueName string, sectorOffset int) error {
	f, err := os.Create(cueName)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateCueFile, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "FILE \"%s\" BINARY\r\n", filepath.Base(imageName))

	if len(cat.TrackListing) == 0 {
		fmt.Fprintf(w, "  TRACK 01 MODE2/2352\r\n")
		fmt.Fprintf(w, "    INDEX 01 00:00:00\r\n")
	} else {
		for _, track := range cat.TrackListing {
			offset := 0
			if track.Number != 1 {
				offset = sectorOffset
			}

			fmt.Fprintf(w, "  TRACK %02d %s\r\n", track.Number, track.Mode)
			if track.Pregap > 0 {
				fmt.Fprintf(w, "    INDEX 00 %s\r\n", psx.MSFString(uint32(int(track.StartLSN)+offset)))
			}
			fmt.Fprintf(w, "    INDEX 01 %s\r\n", psx.MSFString(uint32(int(track.DataLSN)+offset)))
		}
	}

	if err := w.Flush(); err != nil {
		return common.FormatError(common.ErrFailedToCreateCueFile, err)
	}
	return nil
}
