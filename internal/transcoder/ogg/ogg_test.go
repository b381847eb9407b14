package ogg

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	comments := []string{"TITLE=Test Track", "ARTIST=Test Artist"}
	w, err := NewWriter(&buf, 12345, 2, 312, 44100, comments)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	packets := [][]byte{
		bytes.Repeat([]byte{0xAB}, 100),
		bytes.Repeat([]byte{0xCD}, 300), // exercises the >255 segment table path
	}
	for i, p := range packets {
		last := i == len(packets)-1
		granule := uint64(960 * (i + 1))
		if err := w.WriteAudioPacket(p, granule, last); err != nil {
			t.Fatalf("WriteAudioPacket: %v", err)
		}
	}

	r := NewReader(&buf)
	headers, err := r.ReadHeaders()
	if err != nil {
		t.Fatalf("ReadHeaders: %v", err)
	}
	if headers.PreSkip != 312 {
		t.Fatalf("PreSkip: want 312, got %d", headers.PreSkip)
	}
	if headers.ChannelCount != 2 {
		t.Fatalf("ChannelCount: want 2, got %d", headers.ChannelCount)
	}
	if string(headers.CommentsRaw[0:8]) != "OpusTags" {
		t.Fatalf("CommentsRaw missing OpusTags magic: %q", headers.CommentsRaw[0:8])
	}

	for i, want := range packets {
		got, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if !bytes.Equal(got.Data, want) {
			t.Fatalf("packet %d payload mismatch: got %d bytes, want %d", i, len(got.Data), len(want))
		}
		wantLast := i == len(packets)-1
		if got.Last != wantLast {
			t.Fatalf("packet %d Last: want %v, got %v", i, wantLast, got.Last)
		}
	}

	if _, err := r.ReadPacket(); err == nil {
		t.Fatal("expected EOF after last packet")
	}
}
