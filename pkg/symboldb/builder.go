package symboldb

import (
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// Builder interns strings and accumulates symbols for a single monotonic
// write pass.
type Builder struct {
	strings    []byte
	stringOff  map[uint64]map[string]uint32 // xxhash(s) -> s -> offset, dedup via hashmap
	records    []recordRaw
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{stringOff: make(map[uint64]map[string]uint32)}
}

// Add appends a symbol, interning its name and file path into the shared
// string table.
func (b *Builder) Add(sym types.Symbol) {
	var parentID [16]byte
	if sym.HasParent() {
		parentID = sym.ParentID.Bytes()
	}

	b.records = append(b.records, recordRaw{
		ID:             sym.ID.Bytes(),
		NameOffset:     b.intern(sym.Name),
		Kind:           uint8(sym.Kind),
		FilePathOffset: b.intern(sym.FilePath),
		StartLine:      sym.StartLine,
		EndLine:        sym.EndLine,
		ParentID:       parentID,
	})
}

// intern dedups s into the string table via an xxhash-keyed map and
// returns its byte offset, appending a NUL terminator if new.
func (b *Builder) intern(s string) uint32 {
	h := xxhash.Sum64String(s)
	bucket, ok := b.stringOff[h]
	if !ok {
		bucket = make(map[string]uint32)
		b.stringOff[h] = bucket
	}
	if off, ok := bucket[s]; ok {
		return off
	}
	off := uint32(len(b.strings))
	b.strings = append(b.strings, s...)
	b.strings = append(b.strings, 0)
	bucket[s] = off
	return off
}

// Len reports the number of symbols added so far.
func (b *Builder) Len() int {
	return len(b.records)
}

// WriteFile writes the complete symbol database to path: header, then
// records, then the string table, followed by fsync.
func (b *Builder) WriteFile(path string) error {
	symbolsOffset := uint64(headerSize)
	stringTableOffset := symbolsOffset + uint64(len(b.records))*recordSize

	h := header{
		Magic:             magic,
		Version:           formatVersion,
		SymbolCount:       uint32(len(b.records)),
		StringTableOffset: stringTableOffset,
		StringTableSize:   uint64(len(b.strings)),
		SymbolsOffset:     symbolsOffset,
	}

	f, err := os.Create(path)
	if err != nil {
		return kerrors.Wrap(kerrors.Internal, "create symbol db file", err)
	}
	defer f.Close()

	if _, err := f.Write(h.encode()); err != nil {
		return kerrors.Wrap(kerrors.Internal, "write symbol db header", err)
	}
	for _, r := range b.records {
		if _, err := f.Write(r.encode()); err != nil {
			return kerrors.Wrap(kerrors.Internal, "write symbol record", err)
		}
	}
	if _, err := f.Write(b.strings); err != nil {
		return kerrors.Wrap(kerrors.Internal, "write string table", err)
	}
	return f.Sync()
}
