package snapshotio

import (
	"bytes"
	"testing"
)

func TestRoundTripAllCodecs(t *testing.T) {
	image := bytes.Repeat([]byte("snapshot-image-payload "), 64)
	for _, codec := range []Codec{CodecNone, CodecXZ, CodecLZ4} {
		data, err := Encode(image, codec)
		if err != nil {
			t.Fatalf("%s encode: %v", codec, err)
		}
		back, err := Decode(data)
		if err != nil {
			t.Fatalf("%s decode: %v", codec, err)
		}
		if !bytes.Equal(back, image) {
			t.Fatalf("%s: round trip mismatch", codec)
		}
	}
}

func TestUnknownCodec(t *testing.T) {
	if _, err := Encode(nil, Codec("zstd")); err == nil {
		t.Fatal("unknown codec must error")
	}
	if _, err := Decode([]byte("XXXXdata")); err == nil {
		t.Fatal("unknown tag must error")
	}
}
