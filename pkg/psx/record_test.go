// Package psx provides tests for the directory record codec
package psx

import (
	"bytes"
	"testing"
)

func TestRecordSize(t *testing.T) {
	testCases := []struct {
		name     string
		nameLen  int
		suLen    int
		expected int
	}{
		{"dot record", 1, XA_SYSTEM_USE_SIZE, 48},
		{"even name", 8, XA_SYSTEM_USE_SIZE, 56},
		{"odd name", 9, XA_SYSTEM_USE_SIZE, 56},
		{"twelve chars", 12, XA_SYSTEM_USE_SIZE, 60},
		{"pvd root record", 1, 0, 34},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if size := RecordSize(tc.nameLen, tc.suLen); size != tc.expected {
				t.Errorf("RecordSize(%d, %d) = %d, want %d", tc.nameLen, tc.suLen, size, tc.expected)
			}
		})
	}
}

func TestEncodeDirRecord_RoundTrip(t *testing.T) {
	xa := &XAEntry{GroupID: 1117, UserID: 20, Attributes: 0x0D55, FileNum: 0}
	rt := RecordTime{Year: 97, Month: 1, Day: 1, GmtOff: 0}

	encoded := EncodeDirRecord([]byte("FOO.BIN;1"), 26, 2000, rt, 0, xa)
	if len(encoded) != RecordSize(9, XA_SYSTEM_USE_SIZE) {
		t.Fatalf("record length = %d, want %d", len(encoded), RecordSize(9, XA_SYSTEM_USE_SIZE))
	}

	rec, err := ParseDirRecord(encoded)
	if err != nil {
		t.Fatalf("ParseDirRecord() failed: %v", err)
	}
	if rec.Name != "FOO.BIN;1" {
		t.Errorf("name = %q, want %q", rec.Name, "FOO.BIN;1")
	}
	if rec.ExtentLSN != 26 || rec.Size != 2000 {
		t.Errorf("extent/size = %d/%d, want 26/2000", rec.ExtentLSN, rec.Size)
	}
	if rec.Time != rt {
		t.Errorf("time = %+v, want %+v", rec.Time, rt)
	}
	if rec.XA == nil {
		t.Fatal("XA system use area not decoded")
	}
	if *rec.XA != *xa {
		t.Errorf("XA = %+v, want %+v", *rec.XA, *xa)
	}
}

func TestEncodeDirRecord_BothEndianFields(t *testing.T) {
	encoded := EncodeDirRecord([]byte{0x00}, 25, 2048, RecordTime{}, ISO_DIRECTORY,
		&XAEntry{Attributes: 0x8D55})

	// extent: little-endian then big-endian
	if !bytes.Equal(encoded[2:10], []byte{25, 0, 0, 0, 0, 0, 0, 25}) {
		t.Errorf("extent field = % X", encoded[2:10])
	}
	// size: little-endian then big-endian
	if !bytes.Equal(encoded[10:18], []byte{0, 8, 0, 0, 0, 0, 8, 0}) {
		t.Errorf("size field = % X", encoded[10:18])
	}
	// XA attribute word is big-endian, followed by the signature
	su := encoded[len(encoded)-XA_SYSTEM_USE_SIZE:]
	if su[4] != 0x8D || su[5] != 0x55 || su[6] != 'X' || su[7] != 'A' {
		t.Errorf("XA area = % X", su)
	}
}

func TestEncodeDirRecord_HiddenFlag(t *testing.T) {
	encoded := EncodeDirRecord([]byte("SECRET.DAT;1"), 30, 100,
		RecordTime{Year: 98, Month: 6, Day: 15}, ISO_EXISTENCE,
		&XAEntry{Attributes: 0x0D55})

	rec, err := ParseDirRecord(encoded)
	if err != nil {
		t.Fatalf("ParseDirRecord() failed: %v", err)
	}
	if rec.Flags&ISO_EXISTENCE == 0 {
		t.Error("hidden flag lost in round trip")
	}
	if rec.IsDir() {
		t.Error("IsDir() = true for a file record")
	}
}

func TestParseDirRecord_Terminator(t *testing.T) {
	rec, err := ParseDirRecord([]byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("ParseDirRecord() failed on terminator: %v", err)
	}
	if rec != nil {
		t.Error("terminator should decode to nil record")
	}
}

func TestParseDirRecord_Truncated(t *testing.T) {
	if _, err := ParseDirRecord([]byte{40, 0, 0}); err == nil {
		t.Error("ParseDirRecord() should fail on a truncated record")
	}
}
