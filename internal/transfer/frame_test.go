package transfer

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := CollectionManifest{Entries: []ManifestEntry{
		{Name: "song.ogg", HashKind: "sha256", Hash: "abcd", TranscodedSize: 12345},
	}}

	if err := writeFrame(&buf, want); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	var got CollectionManifest
	if err := readFrame(&buf, &got); err != nil {
		t.Fatalf("readFrame: %v", err)
	}

	if len(got.Entries) != 1 || got.Entries[0].Name != "song.ogg" || got.Entries[0].TranscodedSize != 12345 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF}) // huge bogus length prefix
	var v CollectionManifest
	if err := readFrame(&buf, &v); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}
