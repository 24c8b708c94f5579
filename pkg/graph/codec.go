package graph

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// Entry encoding is deterministic and versioned: field order and length
// prefixes are identical on write and read. A historical corruption bug
// was a write/read asymmetry here, not in the page framing, so every
// put/get pair below is kept field-for-field symmetric.

func putString(b []byte, s string) []byte {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
	b = append(b, lenBuf...)
	return append(b, s...)
}

func getString(b []byte, pos int) (string, int, error) {
	if pos+4 > len(b) {
		return "", pos, kerrors.New(kerrors.Truncated, "graph entry string length truncated")
	}
	l := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
	pos += 4
	if l < 0 || pos+l > len(b) {
		return "", pos, kerrors.New(kerrors.Truncated, "graph entry string payload truncated")
	}
	return string(b[pos : pos+l]), pos + l, nil
}

func putLocation(b []byte, loc Location) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], loc.StartLine)
	binary.LittleEndian.PutUint32(buf[4:8], loc.StartColumn)
	binary.LittleEndian.PutUint32(buf[8:12], loc.EndLine)
	binary.LittleEndian.PutUint32(buf[12:16], loc.EndColumn)
	return append(b, buf...)
}

func getLocation(b []byte, pos int) (Location, int, error) {
	if pos+16 > len(b) {
		return Location{}, pos, kerrors.New(kerrors.Truncated, "graph entry location truncated")
	}
	loc := Location{
		StartLine:   binary.LittleEndian.Uint32(b[pos : pos+4]),
		StartColumn: binary.LittleEndian.Uint32(b[pos+4 : pos+8]),
		EndLine:     binary.LittleEndian.Uint32(b[pos+8 : pos+12]),
		EndColumn:   binary.LittleEndian.Uint32(b[pos+12 : pos+16]),
	}
	return loc, pos + 16, nil
}

// encodeNode serializes a Node: id(16) | type | qname | path | location(16)
// | metadata count(4) + (key,value) pairs, sorted by key for determinism |
// updated_at unix nanos (8).
func encodeNode(n Node) []byte {
	b := make([]byte, 0, 64)
	id := n.ID.Bytes()
	b = append(b, id[:]...)
	b = putString(b, n.NodeType)
	b = putString(b, n.QualifiedName)
	b = putString(b, n.FilePath)
	b = putLocation(b, n.Location)

	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cntBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(cntBuf, uint32(len(keys)))
	b = append(b, cntBuf...)
	for _, k := range keys {
		b = putString(b, k)
		b = putString(b, n.Metadata[k])
	}

	tsBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBuf, uint64(n.UpdatedAt.UnixNano()))
	b = append(b, tsBuf...)
	return b
}

func decodeNode(b []byte) (Node, error) {
	if len(b) < 16 {
		return Node{}, kerrors.New(kerrors.Truncated, "graph node entry shorter than id")
	}
	var idBytes [16]byte
	copy(idBytes[:], b[0:16])
	id, err := types.IDFromBytes(idBytes)
	if err != nil {
		return Node{}, kerrors.Wrap(kerrors.CorruptedRecord, "decode graph node id", err)
	}
	pos := 16

	nodeType, pos, err := getString(b, pos)
	if err != nil {
		return Node{}, err
	}
	qname, pos, err := getString(b, pos)
	if err != nil {
		return Node{}, err
	}
	filePath, pos, err := getString(b, pos)
	if err != nil {
		return Node{}, err
	}
	loc, pos, err := getLocation(b, pos)
	if err != nil {
		return Node{}, err
	}
	if pos+4 > len(b) {
		return Node{}, kerrors.New(kerrors.Truncated, "graph node metadata count truncated")
	}
	count := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
	pos += 4
	metadata := make(map[string]string, count)
	for i := 0; i < count; i++ {
		var k, v string
		k, pos, err = getString(b, pos)
		if err != nil {
			return Node{}, err
		}
		v, pos, err = getString(b, pos)
		if err != nil {
			return Node{}, err
		}
		metadata[k] = v
	}
	if pos+8 > len(b) {
		return Node{}, kerrors.New(kerrors.Truncated, "graph node updated_at truncated")
	}
	updatedAt := time.Unix(0, int64(binary.LittleEndian.Uint64(b[pos:pos+8]))).UTC()

	return Node{
		ID:            id,
		NodeType:      nodeType,
		QualifiedName: qname,
		FilePath:      filePath,
		Location:      loc,
		Metadata:      metadata,
		UpdatedAt:     updatedAt,
	}, nil
}

// encodeEdge serializes an Edge: source(16) | target(16) | kind(1) |
// location(line u32, column u32, context string).
func encodeEdge(e Edge) []byte {
	b := make([]byte, 0, 48)
	src := e.Source.Bytes()
	dst := e.Target.Bytes()
	b = append(b, src[:]...)
	b = append(b, dst[:]...)
	b = append(b, byte(e.Kind))
	lineBuf := make([]byte, 8)
	binary.LittleEndian.PutUint32(lineBuf[0:4], e.Location.Line)
	binary.LittleEndian.PutUint32(lineBuf[4:8], e.Location.Column)
	b = append(b, lineBuf...)
	b = putString(b, e.Location.Context)
	return b
}

func decodeEdge(b []byte) (Edge, error) {
	if len(b) < 33 {
		return Edge{}, kerrors.New(kerrors.Truncated, "graph edge entry shorter than fixed fields")
	}
	var srcBytes, dstBytes [16]byte
	copy(srcBytes[:], b[0:16])
	copy(dstBytes[:], b[16:32])
	src, err := types.IDFromBytes(srcBytes)
	if err != nil {
		return Edge{}, kerrors.Wrap(kerrors.CorruptedRecord, "decode graph edge source", err)
	}
	dst, err := types.IDFromBytes(dstBytes)
	if err != nil {
		return Edge{}, kerrors.Wrap(kerrors.CorruptedRecord, "decode graph edge target", err)
	}
	kind := types.RelationKind(b[32])
	pos := 33
	if pos+8 > len(b) {
		return Edge{}, kerrors.New(kerrors.Truncated, "graph edge location truncated")
	}
	line := binary.LittleEndian.Uint32(b[pos : pos+4])
	col := binary.LittleEndian.Uint32(b[pos+4 : pos+8])
	pos += 8
	context, _, err := getString(b, pos)
	if err != nil {
		return Edge{}, err
	}
	return Edge{
		Source: src,
		Target: dst,
		Kind:   kind,
		Location: types.Location{
			Line:    line,
			Column:  col,
			Context: context,
		},
	}, nil
}
