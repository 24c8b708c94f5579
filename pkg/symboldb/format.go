// Package symboldb implements the binary symbol database: a
// high-throughput, read-mostly store of parsed symbols, queryable by id
// in O(1) and by name in O(n). On-disk layout is
// [Header | SymbolRecord x N | StringTable], little-endian throughout.
package symboldb

import (
	"encoding/binary"

	"github.com/kotadb/kotadb/pkg/kerrors"
)

var magic = [4]byte{'K', 'O', 'T', 'A'}

const formatVersion uint32 = 1

const (
	headerSize = 4 + 4 + 4 + 8 + 8 + 8 + 32 // magic+version+count+3 offsets/sizes+reserved
	recordSize = 16 + 4 + 1 + 4 + 4 + 4 + 16 + 3
)

// header is the fixed-size file preamble, little-endian only in v1.
type header struct {
	Magic              [4]byte
	Version            uint32
	SymbolCount        uint32
	StringTableOffset  uint64
	StringTableSize    uint64
	SymbolsOffset      uint64
}

func (h header) encode() []byte {
	b := make([]byte, headerSize)
	copy(b[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.SymbolCount)
	binary.LittleEndian.PutUint64(b[12:20], h.StringTableOffset)
	binary.LittleEndian.PutUint64(b[20:28], h.StringTableSize)
	binary.LittleEndian.PutUint64(b[28:36], h.SymbolsOffset)
	// remaining 32 bytes reserved, left zero
	return b
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, kerrors.New(kerrors.Truncated, "symbol db file shorter than header")
	}
	var h header
	copy(h.Magic[:], b[0:4])
	if h.Magic != magic {
		return header{}, kerrors.New(kerrors.CorruptedHeader, "symbol db magic mismatch")
	}
	h.Version = binary.LittleEndian.Uint32(b[4:8])
	if h.Version != formatVersion {
		return header{}, kerrors.Newf(kerrors.UnsupportedVersion, "symbol db version %d unsupported", h.Version)
	}
	h.SymbolCount = binary.LittleEndian.Uint32(b[8:12])
	h.StringTableOffset = binary.LittleEndian.Uint64(b[12:20])
	h.StringTableSize = binary.LittleEndian.Uint64(b[20:28])
	h.SymbolsOffset = binary.LittleEndian.Uint64(b[28:36])
	return h, nil
}

// recordRaw is the packed, fixed-size on-disk symbol record.
type recordRaw struct {
	ID             [16]byte
	NameOffset     uint32
	Kind           uint8
	FilePathOffset uint32
	StartLine      uint32
	EndLine        uint32
	ParentID       [16]byte
}

func (r recordRaw) encode() []byte {
	b := make([]byte, recordSize)
	copy(b[0:16], r.ID[:])
	binary.LittleEndian.PutUint32(b[16:20], r.NameOffset)
	b[20] = r.Kind
	binary.LittleEndian.PutUint32(b[21:25], r.FilePathOffset)
	binary.LittleEndian.PutUint32(b[25:29], r.StartLine)
	binary.LittleEndian.PutUint32(b[29:33], r.EndLine)
	copy(b[33:49], r.ParentID[:])
	// remaining 3 bytes reserved, left zero
	return b
}

func decodeRecordRaw(b []byte) recordRaw {
	var r recordRaw
	copy(r.ID[:], b[0:16])
	r.NameOffset = binary.LittleEndian.Uint32(b[16:20])
	r.Kind = b[20]
	r.FilePathOffset = binary.LittleEndian.Uint32(b[21:25])
	r.StartLine = binary.LittleEndian.Uint32(b[25:29])
	r.EndLine = binary.LittleEndian.Uint32(b[29:33])
	copy(r.ParentID[:], b[33:49])
	return r
}
