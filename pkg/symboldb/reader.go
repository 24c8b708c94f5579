package symboldb

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// Reader is a memory-mapped, read-only view of a symbol database file.
type Reader struct {
	f       *os.File
	data    mmap.MMap
	hdr     header
	byID    map[types.ID]int // id -> record index, O(1) lookup
}

// Open memory-maps path read-only, validates magic/version, and builds
// the id -> index map for O(1) lookup.
func Open(path string) (*Reader, error) {
	if !nativeIsLittleEndian() {
		return nil, kerrors.New(kerrors.UnsupportedEndian, "symbol db v1 requires a little-endian host")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Internal, "open symbol db", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, kerrors.Wrap(kerrors.Internal, "mmap symbol db", err)
	}

	hdr, err := decodeHeader(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}

	wantSize := hdr.StringTableOffset + hdr.StringTableSize
	if uint64(len(data)) < wantSize {
		data.Unmap()
		f.Close()
		return nil, kerrors.New(kerrors.Truncated, "symbol db file shorter than header declares")
	}

	r := &Reader{f: f, data: data, hdr: hdr, byID: make(map[types.ID]int, hdr.SymbolCount)}
	for i := 0; i < int(hdr.SymbolCount); i++ {
		raw, err := r.rawAt(i)
		if err != nil {
			data.Unmap()
			f.Close()
			return nil, err
		}
		id, err := types.IDFromBytes(raw.ID)
		if err != nil {
			data.Unmap()
			f.Close()
			return nil, kerrors.Wrap(kerrors.CorruptedRecord, "decode symbol id", err)
		}
		r.byID[id] = i
	}
	return r, nil
}

// Close unmaps the file and releases its handle.
func (r *Reader) Close() error {
	if err := r.data.Unmap(); err != nil {
		r.f.Close()
		return kerrors.Wrap(kerrors.Internal, "unmap symbol db", err)
	}
	return r.f.Close()
}

// Count returns the number of symbols in the database.
func (r *Reader) Count() int {
	return int(r.hdr.SymbolCount)
}

func (r *Reader) rawAt(i int) (recordRaw, error) {
	off := int(r.hdr.SymbolsOffset) + i*recordSize
	if off+recordSize > len(r.data) {
		return recordRaw{}, kerrors.New(kerrors.Truncated, "symbol record beyond file bounds")
	}
	return decodeRecordRaw(r.data[off : off+recordSize]), nil
}

func (r *Reader) stringAt(offset uint32) (string, error) {
	tableStart := int(r.hdr.StringTableOffset)
	tableEnd := tableStart + int(r.hdr.StringTableSize)
	start := tableStart + int(offset)
	if start < tableStart || start >= tableEnd {
		return "", kerrors.New(kerrors.CorruptedRecord, "string offset beyond table").WithField("string_table")
	}
	nul := bytes.IndexByte(r.data[start:tableEnd], 0)
	if nul == -1 {
		return "", kerrors.New(kerrors.CorruptedRecord, "string missing NUL terminator").WithField("string_table")
	}
	return string(r.data[start : start+nul]), nil
}

func (r *Reader) symbolAt(i int) (types.Symbol, error) {
	raw, err := r.rawAt(i)
	if err != nil {
		return types.Symbol{}, err
	}
	id, err := types.IDFromBytes(raw.ID)
	if err != nil {
		return types.Symbol{}, kerrors.Wrap(kerrors.CorruptedRecord, "decode symbol id", err)
	}
	name, err := r.stringAt(raw.NameOffset)
	if err != nil {
		return types.Symbol{}, err
	}
	filePath, err := r.stringAt(raw.FilePathOffset)
	if err != nil {
		return types.Symbol{}, err
	}
	var parentID types.ID
	if raw.ParentID != ([16]byte{}) {
		parentID, err = types.IDFromBytes(raw.ParentID)
		if err != nil {
			return types.Symbol{}, kerrors.Wrap(kerrors.CorruptedRecord, "decode parent id", err)
		}
	}
	return types.Symbol{
		ID:        id,
		Name:      name,
		Kind:      types.SymbolKind(raw.Kind),
		FilePath:  filePath,
		StartLine: raw.StartLine,
		EndLine:   raw.EndLine,
		ParentID:  parentID,
	}, nil
}

// Get looks up a symbol by id in O(1).
func (r *Reader) Get(id types.ID) (types.Symbol, bool) {
	i, ok := r.byID[id]
	if !ok {
		return types.Symbol{}, false
	}
	sym, err := r.symbolAt(i)
	if err != nil {
		return types.Symbol{}, false
	}
	return sym, true
}

// FindByName scans every symbol for an exact name match, O(n).
func (r *Reader) FindByName(name string) ([]types.Symbol, error) {
	var out []types.Symbol
	for i := 0; i < int(r.hdr.SymbolCount); i++ {
		sym, err := r.symbolAt(i)
		if err != nil {
			return nil, err
		}
		if sym.Name == name {
			out = append(out, sym)
		}
	}
	return out, nil
}

// All returns every symbol in the database, in on-disk order.
func (r *Reader) All() ([]types.Symbol, error) {
	out := make([]types.Symbol, 0, r.hdr.SymbolCount)
	for i := 0; i < int(r.hdr.SymbolCount); i++ {
		sym, err := r.symbolAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}
