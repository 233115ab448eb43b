// Package chunkfile encodes and decodes the on-disk chunk format.
//
// A chunk file is a 24 byte header, a sequence of entry records and an
// xxhash64 trailer over everything before it. All integers are little-endian.
package chunkfile

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/tphakala/sensorrec/internal/errors"
)

const (
	// Magic opens every chunk file.
	Magic = "SCHK"
	// Version is the only format version this package reads and writes.
	Version uint8 = 1

	HeaderSize        = 24
	TrailerSize       = 8
	SettingsBlockSize = 16

	// entryPrefixSize covers timestamp, index and payload length.
	entryPrefixSize = 16
	// imagePayloadHeader covers plane count and reserved.
	imagePayloadHeader = 4
	// planeHeaderSize covers data length, row stride and pixel stride.
	planeHeaderSize = 12
)

// Header flags.
const (
	FlagSettings uint16 = 1 << 0
)

// Settings block flags.
const (
	settingsResolved uint32 = 1 << 0
)

// Extension is the chunk file suffix.
const Extension = ".bin"

// ComponentChunkFile identifies codec errors.
const ComponentChunkFile = "chunkfile"

// ErrCorruptChunk is returned for any input that is not a valid version 1 chunk.
var ErrCorruptChunk = errors.Newf("corrupt chunk file").
	Component(ComponentChunkFile).
	Category(errors.CategorySerialization).
	Build()

// ErrEncode is returned when entries cannot be represented in the format.
var ErrEncode = errors.Newf("chunk cannot be encoded").
	Component(ComponentChunkFile).
	Category(errors.CategorySerialization).
	Build()

func corrupt(format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: "+format, append([]any{ErrCorruptChunk}, args...)...)).
		Component(ComponentChunkFile).
		Category(errors.CategorySerialization).
		Build()
}

func encodeError(format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: "+format, append([]any{ErrEncode}, args...)...)).
		Component(ComponentChunkFile).
		Category(errors.CategorySerialization).
		Build()
}

var fileNamePattern = regexp.MustCompile(`^(.+)_(\d+)\.bin$`)

// FileName returns the chunk file name for a stream and sequence.
func FileName(stream string, seq uint64) string {
	return stream + "_" + strconv.FormatUint(seq, 10) + Extension
}

// ParseFileName splits a chunk file name into stream and sequence.
func ParseFileName(name string) (stream string, seq uint64, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], seq, true
}
