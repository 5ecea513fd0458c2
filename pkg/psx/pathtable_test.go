// Package psx provides tests for the path table codec
package psx

import (
	"bytes"
	"strings"
	"testing"
)

func TestPathTable_RootOnly(t *testing.T) {
	pt := NewPathTable()

	record, err := pt.AddEntry("", 25, 1)
	if err != nil {
		t.Fatalf("AddEntry() failed: %v", err)
	}
	if record != 1 {
		t.Errorf("root record number = %d, want 1", record)
	}
	if pt.Size() != 10 {
		t.Errorf("table size = %d, want 10", pt.Size())
	}

	expected := []byte{1, 0, 25, 0, 0, 0, 1, 0, 0, 0}
	if !bytes.Equal(pt.LTable(), expected) {
		t.Errorf("L-table = % X, want % X", pt.LTable(), expected)
	}
}

func TestPathTable_Endianness(t *testing.T) {
	pt := NewPathTable()
	pt.AddEntry("", 25, 1)
	record, err := pt.AddEntry("DATA", 0x123456, 1)
	if err != nil {
		t.Fatalf("AddEntry() failed: %v", err)
	}
	if record != 2 {
		t.Errorf("record number = %d, want 2", record)
	}

	l := pt.LTable()[10:]
	m := pt.MTable()[10:]

	if !bytes.Equal(l[2:6], []byte{0x56, 0x34, 0x12, 0x00}) {
		t.Errorf("L-table extent = % X", l[2:6])
	}
	if !bytes.Equal(m[2:6], []byte{0x00, 0x12, 0x34, 0x56}) {
		t.Errorf("M-table extent = % X", m[2:6])
	}
	if l[6] != 1 || l[7] != 0 {
		t.Errorf("L-table parent = % X", l[6:8])
	}
	if m[6] != 0 || m[7] != 1 {
		t.Errorf("M-table parent = % X", m[6:8])
	}

	// Identical entries modulo byte order: names match
	if !bytes.Equal(l[8:12], m[8:12]) {
		t.Error("L/M table names differ")
	}
}

func TestPathTable_OddNamePadding(t *testing.T) {
	pt := NewPathTable()
	pt.AddEntry("", 25, 1)
	pt.AddEntry("ABC", 30, 1)

	// 10 bytes root + 8 + 3 + 1 padding
	if pt.Size() != 22 {
		t.Errorf("table size = %d, want 22", pt.Size())
	}
}

func TestPathTable_RejectsOverflow(t *testing.T) {
	pt := NewPathTable()
	name := strings.Repeat("D", 30)

	var err error
	for i := 0; i < 100; i++ {
		if _, err = pt.AddEntry(name, uint32(25+i), 1); err != nil {
			break
		}
	}
	if err == nil {
		t.Error("AddEntry() should reject a table larger than one sector")
	}
}

func TestParsePathTable_RoundTrip(t *testing.T) {
	pt := NewPathTable()
	pt.AddEntry("", 25, 1)
	pt.AddEntry("DATA", 26, 1)
	pt.AddEntry("MOVIES", 40, 1)
	pt.AddEntry("SUB", 60, 2)

	entries := ParsePathTable(pt.LTable(), uint32(pt.Size()))
	if len(entries) != 4 {
		t.Fatalf("parsed %d entries, want 4", len(entries))
	}

	expected := []struct {
		name     string
		location uint32
		parent   uint16
	}{
		{"\x00", 25, 1},
		{"DATA", 26, 1},
		{"MOVIES", 40, 1},
		{"SUB", 60, 2},
	}

	for i, exp := range expected {
		if entries[i].Name != exp.name {
			t.Errorf("entry %d name = %q, want %q", i, entries[i].Name, exp.name)
		}
		if entries[i].DirLocation != exp.location {
			t.Errorf("entry %d location = %d, want %d", i, entries[i].DirLocation, exp.location)
		}
		if entries[i].ParentDir != exp.parent {
			t.Errorf("entry %d parent = %d, want %d", i, entries[i].ParentDir, exp.parent)
		}
	}
}
