// Package snapshotio wraps snapshot images with optional stream
// compression for storage and transport: xz for high-ratio cold storage,
// lz4 for low-latency paths. A short codec tag prefixes the payload so
// readers self-select.
package snapshotio

import (
	"bytes"
	"fmt"
	"io"

	lz4 "github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec selects the compression applied around a snapshot image.
type Codec string

const (
	CodecNone Codec = "none"
	CodecXZ   Codec = "xz"
	CodecLZ4  Codec = "lz4"
)

var codecTags = map[Codec][4]byte{
	CodecNone: {'J', 'S', 'N', '0'},
	CodecXZ:   {'J', 'S', 'X', 'Z'},
	CodecLZ4:  {'J', 'S', 'L', '4'},
}

// WriteCompressed writes a tagged, optionally compressed image to w.
func WriteCompressed(w io.Writer, image []byte, codec Codec) error {
	tag, ok := codecTags[codec]
	if !ok {
		return fmt.Errorf("snapshotio: unknown codec %q", codec)
	}
	if _, err := w.Write(tag[:]); err != nil {
		return err
	}
	switch codec {
	case CodecNone:
		_, err := w.Write(image)
		return err
	case CodecXZ:
		zw, err := xz.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := zw.Write(image); err != nil {
			return err
		}
		return zw.Close()
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(image); err != nil {
			return err
		}
		return zw.Close()
	}
	return nil
}

// ReadCompressed reads a tagged image back, decompressing as the tag
// demands.
func ReadCompressed(r io.Reader) ([]byte, error) {
	var tag [4]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch tag {
	case codecTags[CodecNone]:
		return io.ReadAll(r)
	case codecTags[CodecXZ]:
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.ReadAll(zr)
	case codecTags[CodecLZ4]:
		return io.ReadAll(lz4.NewReader(r))
	}
	return nil, fmt.Errorf("snapshotio: unknown image tag %q", tag)
}

// Encode is the in-memory convenience form of WriteCompressed.
func Encode(image []byte, codec Codec) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCompressed(&buf, image, codec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the in-memory convenience form of ReadCompressed.
func Decode(data []byte) ([]byte, error) {
	return ReadCompressed(bytes.NewReader(data))
}
