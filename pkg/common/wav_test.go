// Package common provides tests for the WAV header helpers
package common

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAVHeader(&buf, 2352*4); err != nil {
		t.Fatalf("WriteWAVHeader() failed: %v", err)
	}

	header := buf.Bytes()
	if len(header) != WavHeaderSize {
		t.Fatalf("header length = %d, want %d", len(header), WavHeaderSize)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Errorf("signature = %q %q", header[0:4], header[8:12])
	}
	if binary.LittleEndian.Uint16(header[22:24]) != 2 {
		t.Errorf("channels = %d, want 2", binary.LittleEndian.Uint16(header[22:24]))
	}
	if binary.LittleEndian.Uint32(header[24:28]) != 44100 {
		t.Errorf("sample rate = %d, want 44100", binary.LittleEndian.Uint32(header[24:28]))
	}
	if binary.LittleEndian.Uint32(header[28:32]) != 176400 {
		t.Errorf("byte rate = %d, want 176400", binary.LittleEndian.Uint32(header[28:32]))
	}
	if binary.LittleEndian.Uint32(header[40:44]) != 2352*4 {
		t.Errorf("data size = %d, want %d", binary.LittleEndian.Uint32(header[40:44]), 2352*4)
	}
}

func TestSkipWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := WriteWAVHeader(&buf, uint32(len(payload))); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload)

	size, err := SkipWAVHeader(&buf)
	if err != nil {
		t.Fatalf("SkipWAVHeader() failed: %v", err)
	}
	if size != uint32(len(payload)) {
		t.Errorf("payload size = %d, want %d", size, len(payload))
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("remaining bytes = %v, want %v", buf.Bytes(), payload)
	}
}

func TestSkipWAVHeader_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("RIFF")},
		{"wrong signature", bytes.Repeat([]byte{0x42}, WavHeaderSize)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := SkipWAVHeader(bytes.NewReader(tc.data)); err == nil {
				t.Errorf("SkipWAVHeader() should fail for %s input", tc.name)
			}
		})
	}
}
