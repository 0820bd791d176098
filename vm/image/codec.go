package image

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Header layout: 4 magic bytes then one version byte.
const (
	headerSize         = 5
	formatVersion byte = 0x01
)

var magic = [4]byte{'B', 'E', 'A', 'X'}

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected BEAX")
	ErrVersionMismatch = errors.New("image format version mismatch")
	ErrTruncated       = errors.New("image shorter than its header")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode serializes f with the image header.
func Encode(f *File) ([]byte, error) {
	body, err := cborEncMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("image: encode: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(headerSize + len(body))
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Parse checks the header and decodes the CBOR body.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, ErrInvalidMagic
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, data[4], formatVersion)
	}
	var f File
	if err := cbor.Unmarshal(data[headerSize:], &f); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	return &f, nil
}

// WriteFile encodes f to path.
func WriteFile(path string, f *File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
