package graph

import (
	"encoding/binary"
	"os"

	"github.com/kotadb/kotadb/pkg/kerrors"
)

var pageMagic = [8]byte{'K', 'G', 'R', 'A', 'P', 'H', 'v', '1'}

const pageFormatVersion uint32 = 1

// PageCapacity bounds entries per page; a page at capacity triggers a new
// page rather than growing this one.
const PageCapacity = 256

const pageHeaderSize = 8 + 4 + 4 + 16 // magic + version + entry_count + reserved

// page is the in-memory, decoded form of one on-disk page file: a header
// plus its raw (still-encoded) entries, each individually length-prefixed
// on disk so a single corrupted entry doesn't require re-deriving offsets
// for the rest of the page.
type page struct {
	entries [][]byte
}

func encodePage(p page) []byte {
	body := make([]byte, 0, pageHeaderSize)
	body = append(body, pageMagic[:]...)
	verBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(verBuf, pageFormatVersion)
	body = append(body, verBuf...)
	cntBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(cntBuf, uint32(len(p.entries)))
	body = append(body, cntBuf...)
	body = append(body, make([]byte, 16)...) // reserved

	for _, e := range p.entries {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(e)))
		body = append(body, lenBuf...)
		body = append(body, e...)
	}
	return body
}

// decodePage validates the page header and decodes each length-prefixed
// entry. A malformed length prefix or truncated entry payload stops
// decoding at that point and returns the entries read so far alongside
// the error. The Store's loaders discard those entries and quarantine
// the whole page.
func decodePage(b []byte) (page, error) {
	if len(b) < pageHeaderSize {
		return page{}, kerrors.New(kerrors.Truncated, "graph page shorter than header")
	}
	var magic [8]byte
	copy(magic[:], b[0:8])
	if magic != pageMagic {
		return page{}, kerrors.New(kerrors.CorruptedHeader, "graph page magic mismatch")
	}
	version := binary.LittleEndian.Uint32(b[8:12])
	if version != pageFormatVersion {
		return page{}, kerrors.Newf(kerrors.UnsupportedVersion, "graph page version %d unsupported", version)
	}
	entryCount := binary.LittleEndian.Uint32(b[12:16])
	if entryCount > PageCapacity {
		return page{}, kerrors.Newf(kerrors.CorruptedHeader, "graph page entry_count %d exceeds capacity", entryCount)
	}

	pos := pageHeaderSize
	entries := make([][]byte, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		if pos+4 > len(b) {
			return page{entries: entries}, kerrors.New(kerrors.Truncated, "graph page entry length prefix truncated")
		}
		l := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
		pos += 4
		if l < 0 || pos+l > len(b) {
			return page{entries: entries}, kerrors.New(kerrors.Truncated, "graph page entry payload truncated")
		}
		entry := make([]byte, l)
		copy(entry, b[pos:pos+l])
		entries = append(entries, entry)
		pos += l
	}
	return page{entries: entries}, nil
}

func readPageFile(path string) (page, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return page{}, kerrors.Wrap(kerrors.Internal, "read graph page", err)
	}
	return decodePage(b)
}

func writePageFile(path string, p page) error {
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return kerrors.Wrap(kerrors.Internal, "create graph page", err)
	}
	if _, err := f.Write(encodePage(p)); err != nil {
		f.Close()
		return kerrors.Wrap(kerrors.Internal, "write graph page", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return kerrors.Wrap(kerrors.Internal, "sync graph page", err)
	}
	if err := f.Close(); err != nil {
		return kerrors.Wrap(kerrors.Internal, "close graph page", err)
	}
	return os.Rename(path+".tmp", path)
}
