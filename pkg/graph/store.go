package graph

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/types"
)

// Config tunes flush policy. The batch-or-sync choice is exposed as a
// single boolean rather than a second dual-trigger policy like the
// document store's, because the graph has no WAL to make a batched
// window safe across a crash; the page files themselves are the
// durability unit.
type Config struct {
	AutoSync bool
}

// DefaultConfig syncs after every mutation, trading throughput for the
// simplest possible crash-safety story.
func DefaultConfig() Config {
	return Config{AutoSync: true}
}

// EdgeView pairs a traversed edge with the neighbor id on the other end.
type EdgeView struct {
	NeighborID types.ID
	Edge       Edge
}

// Store is the durable, page-backed relationship graph.
type Store struct {
	mu       sync.RWMutex
	dir      string
	cfg      Config
	nodes    map[types.ID]Node
	outgoing map[types.ID][]Edge // keyed by source
	incoming map[types.ID][]Edge // keyed by target
	dirty    bool

	quarantined []string
	logger      zerolog.Logger
}

func nodesDir(dir string) string { return filepath.Join(dir, "nodes") }
func outDir(dir string) string   { return filepath.Join(dir, "edges", "out") }
func inDir(dir string) string    { return filepath.Join(dir, "edges", "in") }

// Open opens (creating if necessary) a graph store rooted at dir. A page
// that fails to decode is quarantined: skipped, with its path recorded,
// rather than failing the whole open.
func Open(dir string, cfg Config) (*Store, error) {
	for _, d := range []string{nodesDir(dir), outDir(dir), inDir(dir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, kerrors.Wrap(kerrors.Internal, "create graph dir", err)
		}
	}

	s := &Store{
		dir:      dir,
		cfg:      cfg,
		nodes:    make(map[types.ID]Node),
		outgoing: make(map[types.ID][]Edge),
		incoming: make(map[types.ID][]Edge),
		logger:   log.WithComponent("graph"),
	}

	if err := s.loadNodes(); err != nil {
		return nil, err
	}
	if err := s.loadEdges(outDir(dir), s.outgoing, false); err != nil {
		return nil, err
	}
	if err := s.loadEdges(inDir(dir), s.incoming, true); err != nil {
		return nil, err
	}
	return s, nil
}

func pageFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.page"))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Internal, "glob graph pages", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *Store) loadNodes() error {
	files, err := pageFiles(nodesDir(s.dir))
	if err != nil {
		return err
	}
	for _, f := range files {
		p, err := readPageFile(f)
		if err != nil {
			s.quarantined = append(s.quarantined, f)
			s.logger.Warn().Str("page", f).Err(err).Msg("quarantined corrupted node page")
			continue
		}
		for _, raw := range p.entries {
			n, err := decodeNode(raw)
			if err != nil {
				s.quarantined = append(s.quarantined, f)
				s.logger.Warn().Str("page", f).Err(err).Msg("quarantined corrupted node entry")
				continue
			}
			s.nodes[n.ID] = n
		}
	}
	return nil
}

func (s *Store) loadEdges(dir string, into map[types.ID][]Edge, incoming bool) error {
	files, err := pageFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		p, err := readPageFile(f)
		if err != nil {
			s.quarantined = append(s.quarantined, f)
			s.logger.Warn().Str("page", f).Err(err).Msg("quarantined corrupted edge page")
			continue
		}
		for _, raw := range p.entries {
			e, err := decodeEdge(raw)
			if err != nil {
				s.quarantined = append(s.quarantined, f)
				s.logger.Warn().Str("page", f).Err(err).Msg("quarantined corrupted edge entry")
				continue
			}
			key := e.Source
			if incoming {
				key = e.Target
			}
			into[key] = append(into[key], e)
		}
	}
	return nil
}

// QuarantinedPages lists pages skipped on open due to a decode failure,
// surfaced by the validation service.
func (s *Store) QuarantinedPages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.quarantined...)
}

// StoreNode upserts a node.
func (s *Store) StoreNode(n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID.IsZero() {
		return kerrors.New(kerrors.Validation, "graph node id must not be zero").WithField("id")
	}
	s.nodes[n.ID] = n
	s.dirty = true
	return s.maybeSyncLocked()
}

// GetNode returns the node for id, if present.
func (s *Store) GetNode(id types.ID) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// StoreEdge validates and persists a directed edge, writing it to both
// src's outgoing adjacency list and dst's incoming adjacency list; the
// redundant storage gives O(1) bidirectional traversal without a
// secondary index.
func (s *Store) StoreEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Source.Equal(e.Target) {
		return kerrors.New(kerrors.Validation, "self-edges are forbidden").WithField("target")
	}
	if _, ok := s.nodes[e.Source]; !ok {
		return kerrors.Newf(kerrors.NotFound, "edge source %s does not exist", e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return kerrors.Newf(kerrors.NotFound, "edge target %s does not exist", e.Target)
	}

	s.outgoing[e.Source] = append(s.outgoing[e.Source], e)
	s.incoming[e.Target] = append(s.incoming[e.Target], e)
	s.dirty = true
	return s.maybeSyncLocked()
}

// GetEdges returns every (neighbor, edge) pair reachable from id in the
// given direction.
func (s *Store) GetEdges(id types.ID, dir Direction) []EdgeView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []Edge
	if dir == Outgoing {
		edges = s.outgoing[id]
	} else {
		edges = s.incoming[id]
	}
	out := make([]EdgeView, len(edges))
	for i, e := range edges {
		neighbor := e.Target
		if dir == Incoming {
			neighbor = e.Source
		}
		out[i] = EdgeView{NeighborID: neighbor, Edge: e}
	}
	return out
}

// NodeCount and EdgeCount back the Stats service.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, edges := range s.outgoing {
		total += len(edges)
	}
	return total
}

func (s *Store) maybeSyncLocked() error {
	if !s.cfg.AutoSync {
		return nil
	}
	return s.syncLocked()
}

// Sync flushes all dirty state to page files under nodes/, edges/out/,
// and edges/in/.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked()
}

func (s *Store) syncLocked() error {
	if !s.dirty {
		return nil
	}

	ids := make([]types.ID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	entries := make([][]byte, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, encodeNode(s.nodes[id]))
	}
	if err := writePages(nodesDir(s.dir), entries); err != nil {
		return err
	}

	if err := s.syncEdgeDirLocked(outDir(s.dir), s.outgoing); err != nil {
		return err
	}
	if err := s.syncEdgeDirLocked(inDir(s.dir), s.incoming); err != nil {
		return err
	}

	s.dirty = false
	s.logger.Debug().Int("nodes", len(s.nodes)).Msg("graph sync complete")
	return nil
}

func (s *Store) syncEdgeDirLocked(dir string, byKey map[types.ID][]Edge) error {
	keys := make([]types.ID, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })

	entries := make([][]byte, 0)
	for _, k := range keys {
		for _, e := range byKey[k] {
			entries = append(entries, encodeEdge(e))
		}
	}
	return writePages(dir, entries)
}

// writePages rewrites dir's page files from scratch, splitting entries
// into PageCapacity-sized chunks and removing any stale page left over
// from a previous, larger write.
func writePages(dir string, entries [][]byte) error {
	existing, err := pageFiles(dir)
	if err != nil {
		return err
	}

	pageCount := 0
	for i := 0; i < len(entries); i += PageCapacity {
		end := i + PageCapacity
		if end > len(entries) {
			end = len(entries)
		}
		path := filepath.Join(dir, pageFileName(pageCount))
		if err := writePageFile(path, page{entries: entries[i:end]}); err != nil {
			return err
		}
		pageCount++
	}
	if len(entries) == 0 {
		path := filepath.Join(dir, pageFileName(0))
		if err := writePageFile(path, page{}); err != nil {
			return err
		}
		pageCount = 1
	}

	for _, f := range existing {
		if pageIndexOf(f) >= pageCount {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				return kerrors.Wrap(kerrors.Internal, "remove stale graph page", err)
			}
		}
	}
	return nil
}

func pageFileName(i int) string {
	return filepathPad(i) + ".page"
}

func filepathPad(i int) string {
	const digits = "0123456789"
	s := make([]byte, 6)
	for p := 5; p >= 0; p-- {
		s[p] = digits[i%10]
		i /= 10
	}
	return string(s)
}

func pageIndexOf(path string) int {
	base := filepath.Base(path)
	n := 0
	for _, r := range base {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Close syncs and releases the store. The graph has no held file handles
// between calls (each sync opens, writes, and closes), so Close is just a
// final sync.
func (s *Store) Close() error {
	return s.Sync()
}
