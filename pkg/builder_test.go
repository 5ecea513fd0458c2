// Package pkg provides end-to-end tests for the image builder
package pkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hansbonini/psximager/pkg/common"
	"github.com/hansbonini/psximager/pkg/psx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readSectorPayload returns the 2048-byte user data of a sector of a
// built image.
func readSectorPayload(t *testing.T, image []byte, lsn uint32) []byte {
	t.Helper()
	offset := int(lsn) * psx.CD_SECTOR_SIZE
	require.LessOrEqual(t, offset+psx.CD_SECTOR_SIZE, len(image), "sector %d past image end", lsn)
	return image[offset+psx.CD_XA_SYNC_HEADER : offset+psx.CD_XA_SYNC_HEADER+psx.CD_DATA_SIZE]
}

func buildImage(t *testing.T, catalogText string, files map[string][]byte) (string, []byte) {
	t.Helper()
	catalogPath, _ := writeFixture(t, catalogText, files)

	builder := NewCDBuilder(BuildOptions{})
	require.NoError(t, builder.Build(catalogPath, ""))

	imagePath := filepath.Join(filepath.Dir(catalogPath), "GAME.bin")
	image, err := os.ReadFile(imagePath)
	require.NoError(t, err)
	return imagePath, image
}

// Scenario A: an empty volume occupies 25 + 1 + 150 sectors.
func TestBuild_EmptyVolume(t *testing.T) {
	_, image := buildImage(t, volumeSection+"\ndir {\n}\n", nil)

	require.Equal(t, 176*psx.CD_SECTOR_SIZE, len(image), "volume size = 25 + 1 root sector + 150 postgap")

	pvd, err := psx.ParsePVD(readSectorPayload(t, image, psx.ISO_PVD_SECTOR))
	require.NoError(t, err)
	assert.Equal(t, uint32(176), pvd.VolumeSpaceSize)
	assert.Equal(t, uint32(10), pvd.PathTableSize, "one root entry: 8 bytes + name + padding")
	assert.Equal(t, uint32(21), pvd.TypeLPathTable)
	assert.Equal(t, uint32(22), pvd.OptTypeLPathTable)
	assert.Equal(t, uint32(23), pvd.TypeMPathTable)
	assert.Equal(t, uint32(24), pvd.OptTypeMPathTable)

	rootRec, err := psx.ParseDirRecord(pvd.RootRecord)
	require.NoError(t, err)
	assert.Equal(t, uint32(psx.ISO_ROOT_DIR_SECTOR), rootRec.ExtentLSN)
	assert.Equal(t, uint32(psx.ISO_BLOCKSIZE), rootRec.Size)

	// EVD terminator right after the PVD
	evd := readSectorPayload(t, image, psx.ISO_EVD_SECTOR)
	assert.Equal(t, byte(255), evd[0])
	assert.Equal(t, "CD001", string(evd[1:6]))

	// Path table: single root entry, zero padded to a full sector
	lTable := readSectorPayload(t, image, psx.ISO_PATH_TABLE_SECTOR)
	assert.Equal(t, []byte{1, 0, 25, 0, 0, 0, 1, 0, 0, 0}, lTable[:10])
	assert.Equal(t, make([]byte, psx.ISO_BLOCKSIZE-10), lTable[10:])

	// Both L copies identical, M copies carry the byte-swapped fields
	assert.Equal(t, lTable, readSectorPayload(t, image, psx.ISO_PATH_TABLE_SECTOR+1))
	mTable := readSectorPayload(t, image, psx.ISO_PATH_TABLE_SECTOR+2)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 25, 0, 1, 0, 0}, mTable[:10])

	// Root directory extent with its "." and ".." records
	rootData := readSectorPayload(t, image, psx.ISO_ROOT_DIR_SECTOR)
	dot, err := psx.ParseDirRecord(rootData)
	require.NoError(t, err)
	assert.Equal(t, "\x00", dot.Name)
	assert.Equal(t, uint32(25), dot.ExtentLSN)
}

// Scenario B: a single Form 1 file whose requested sector collides with
// the root directory.
func TestBuild_SingleForm1File(t *testing.T) {
	content := make([]byte, 2000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	catalogText := volumeSection[:len(volumeSection)-2] + "  strict_rebuild 1\n}\n" + `
dir @25 GID0 UID0 ATRS36181 ATRP36181 DATES19970101000000 DATEP19970101000000 TIMEZONES0 TIMEZONEP0 HIDDEN0 {
  file FOO @25 GID0 UID0 ATR3413 DATE19970101000000 TIMEZONE0 SIZE2000 HIDDEN0
}
`
	_, image := buildImage(t, catalogText, map[string][]byte{"FOO": content})

	// Collision pushes the file past the root directory
	payload := readSectorPayload(t, image, 26)
	assert.Equal(t, content, payload[:2000])
	assert.Equal(t, make([]byte, 48), payload[2000:], "payload tail is zero filled")

	// The last (and only) file sector carries the EOF|EOR submode
	raw := image[26*psx.CD_SECTOR_SIZE:]
	assert.Equal(t, byte(psx.SM_DATA|psx.SM_EOF|psx.SM_EOR), raw[18])

	// Directory record points at the moved extent with the byte size
	rootData := readSectorPayload(t, image, 25)
	records := parseAllRecords(t, rootData)
	require.Len(t, records, 3)
	foo := records[2]
	assert.Equal(t, "FOO;1", foo.Name)
	assert.Equal(t, uint32(26), foo.ExtentLSN)
	assert.Equal(t, uint32(2000), foo.Size)
	require.NotNil(t, foo.XA)
	assert.Equal(t, uint16(3413), foo.XA.Attributes)
}

// Scenario C: a Form 2 XA file with stripped EDC.
func TestBuild_Form2ZeroEDC(t *testing.T) {
	// Three 2336-byte chunks, each opening with a Form 2 subheader
	content := make([]byte, 3*psx.CD_XA_DATA_SIZE)
	for chunk := 0; chunk < 3; chunk++ {
		base := chunk * psx.CD_XA_DATA_SIZE
		sub := []byte{1, 0, psx.SM_FORM2 | psx.SM_VIDEO, 0x7F}
		copy(content[base:], sub)
		copy(content[base+4:], sub)
		for i := 8; i < psx.CD_XA_DATA_SIZE; i++ {
			content[base+i] = byte(i ^ chunk)
		}
	}

	catalogText := volumeSection + `
dir {
  xafile VIDEO @30 GID0 UID0 ATR5461 DATE19970101000000 TIMEZONE0 SIZE6144 HIDDEN0 ZEROEDC1
}
`
	_, image := buildImage(t, catalogText, map[string][]byte{"VIDEO": content})

	for sector := uint32(30); sector < 33; sector++ {
		raw := image[sector*psx.CD_SECTOR_SIZE : (sector+1)*psx.CD_SECTOR_SIZE]
		assert.Equal(t, byte(psx.SM_FORM2|psx.SM_VIDEO), raw[18], "sector %d submode", sector)
		assert.Equal(t, raw[18], raw[22], "subheader copies must match")
		assert.Equal(t, []byte{0, 0, 0, 0}, raw[2348:2352], "sector %d EDC must be zeroed", sector)

		chunk := int(sector-30) * psx.CD_XA_DATA_SIZE
		assert.Equal(t, content[chunk+8:chunk+8+psx.CD_XA_FORM2_SIZE], raw[24:2348], "sector %d payload", sector)
	}
}

// Scenario D: a CDDA placeholder's directory record is shifted by the
// difference between the rebuilt and the original data-track length.
func TestBuild_CDDAOffset(t *testing.T) {
	audioSectors := 10
	pcm := make([]byte, audioSectors*psx.CD_SECTOR_SIZE)
	for i := range pcm {
		pcm[i] = byte(i % 13)
	}

	trackListing := encodeTrackListing([]psx.Track{
		{Number: 1, Mode: "MODE2/2352", StartLSN: 0, Pregap: 0, DataLSN: 0, EndLSN: 159, Sectors: 160},
		{Number: 2, Mode: "AUDIO", StartLSN: 160, Pregap: 0, DataLSN: 160, EndLSN: 169, Sectors: 10},
	})

	catalogText := `volume {
  volume_id [CDDADISC]
  creation_date 1997-01-01 00:00:00.00 0
  track_listing [` + trackListing + `]
  track1_sector_count 160
  track1_postgap_type 1
  audio_sectors 10
  strict_rebuild 0
}

dir {
  cddafile AUDIO.DA @200 GID0 UID0 ATR19797 DATE19970101000000 TIMEZONE0 SIZE3456000 HIDDEN0
}
`
	catalogPath, base := writeFixture(t, catalogText, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(base, psxRipDir), 0755))

	var wav bytes.Buffer
	require.NoError(t, common.WriteWAVHeader(&wav, uint32(len(pcm))))
	wav.Write(pcm)
	require.NoError(t, os.WriteFile(filepath.Join(base, psxRipDir, "Track_02.wav"), wav.Bytes(), 0644))

	builder := NewCDBuilder(BuildOptions{WriteCueFile: true})
	require.NoError(t, builder.Build(catalogPath, ""))

	image, err := os.ReadFile(filepath.Join(filepath.Dir(catalogPath), "GAME.bin"))
	require.NoError(t, err)

	// Data track: 25 + 1 root sector + 150 postgap = 176 sectors; the
	// original track had 160, so the offset is 16
	require.Equal(t, (176+audioSectors)*psx.CD_SECTOR_SIZE, len(image))

	rootData := readSectorPayload(t, image, 25)
	records := parseAllRecords(t, rootData)
	require.Len(t, records, 3)
	audio := records[2]
	assert.Equal(t, "AUDIO.DA;1", audio.Name)
	assert.Equal(t, uint32(200+16), audio.ExtentLSN, "CDDA extent = requested + (rebuilt - original) track length")
	assert.Equal(t, uint32(3456000), audio.Size)

	// The audio payload is appended verbatim after the postgap
	assert.Equal(t, pcm, image[176*psx.CD_SECTOR_SIZE:])

	// The cue sheet shifts the audio track by the same offset
	cue, err := os.ReadFile(filepath.Join(filepath.Dir(catalogPath), "GAME.cue"))
	require.NoError(t, err)
	assert.Contains(t, string(cue), "TRACK 01 MODE2/2352")
	assert.Contains(t, string(cue), "TRACK 02 AUDIO")
	assert.Contains(t, string(cue), "INDEX 01 "+psx.MSFString(176))
}

// Scenario F / postgap flavors.
func TestBuild_PostgapTypes(t *testing.T) {
	testCases := []struct {
		name        string
		postgapType int
		submode     byte
		zeroEDC     bool
	}{
		{"type 1 empty", 1, 0x00, true},
		{"type 2 form2 marker", 2, psx.SM_FORM2, true},
		{"type 3 form2 with EDC", 3, psx.SM_FORM2, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			catalogText := `volume {
  volume_id [POSTGAP]
  creation_date 1997-01-01 00:00:00.00 0
  track1_postgap_type ` + string(rune('0'+tc.postgapType)) + `
}

dir {
}
`
			_, image := buildImage(t, catalogText, nil)
			require.Equal(t, 176*psx.CD_SECTOR_SIZE, len(image))

			// First and last postgap sector (LSNs 26 and 175)
			for _, lsn := range []uint32{26, 175} {
				raw := image[lsn*psx.CD_SECTOR_SIZE : (lsn+1)*psx.CD_SECTOR_SIZE]
				assert.Equal(t, tc.submode, raw[18], "postgap submode at %d", lsn)

				edcZero := bytes.Equal(raw[2348:2352], []byte{0, 0, 0, 0})
				assert.Equal(t, tc.zeroEDC, edcZero, "postgap EDC at %d", lsn)
			}
		})
	}
}

// parseAllRecords decodes every record of one directory sector.
func parseAllRecords(t *testing.T, data []byte) []*psx.DirRecord {
	t.Helper()
	var records []*psx.DirRecord
	offset := 0
	for offset < len(data) {
		rec, err := psx.ParseDirRecord(data[offset:])
		require.NoError(t, err)
		if rec == nil {
			break
		}
		records = append(records, rec)
		offset += int(rec.Length)
	}
	return records
}

// The gap sectors between the system area and the PVD are empty Form 2
// filler.
func TestBuild_GapSectors(t *testing.T) {
	_, image := buildImage(t, volumeSection+"\ndir {\n}\n", nil)

	for lsn := uint32(16); lsn < psx.ISO_PVD_SECTOR; lsn++ {
		raw := image[lsn*psx.CD_SECTOR_SIZE : (lsn+1)*psx.CD_SECTOR_SIZE]
		assert.Equal(t, byte(psx.SM_FORM2), raw[18], "gap sector %d submode", lsn)
		assert.Equal(t, byte(2), raw[15], "gap sector %d mode", lsn)
	}

	// The PVD sector submode omits EOF
	pvdRaw := image[psx.ISO_PVD_SECTOR*psx.CD_SECTOR_SIZE:]
	assert.Equal(t, byte(psx.SM_DATA|psx.SM_EOR), pvdRaw[18])
}

// The system area is copied back raw from the .sys file.
func TestBuild_SystemAreaFile(t *testing.T) {
	dir := t.TempDir()
	sysPath := filepath.Join(dir, "boot.sys")
	sysData := bytes.Repeat([]byte{0xAB}, 2*psx.CD_SECTOR_SIZE)
	require.NoError(t, os.WriteFile(sysPath, sysData, 0644))

	catalogText := `system_area {
  file "` + sysPath + `"
}

` + volumeSection + "\ndir {\n}\n"

	_, image := buildImage(t, catalogText, nil)

	assert.Equal(t, sysData, image[:2*psx.CD_SECTOR_SIZE], "system area copied raw")
	assert.Equal(t, make([]byte, psx.CD_SECTOR_SIZE), image[15*psx.CD_SECTOR_SIZE:16*psx.CD_SECTOR_SIZE],
		"remaining system sectors zero filled")
}
