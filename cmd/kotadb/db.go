package main

import (
	"os"
	"path/filepath"

	"github.com/kotadb/kotadb/pkg/graph"
	"github.com/kotadb/kotadb/pkg/index/primary"
	"github.com/kotadb/kotadb/pkg/index/trigram"
	"github.com/kotadb/kotadb/pkg/ingest"
	"github.com/kotadb/kotadb/pkg/metrics"
	"github.com/kotadb/kotadb/pkg/service"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/symboldb"
)

// database bundles every open component under one root directory:
// storage/, primary_index/, trigram_index/, symbols.kota, graph/. It
// satisfies service.DatabaseAccess and also exposes the raw handles the
// ingestion pipeline needs.
type database struct {
	root         string
	store        *storage.Store
	primaryIdx   *primary.Index
	trigramIdx   *trigram.Index
	symbolPath   string
	symbolReader *symboldb.Reader
	graphStore   *graph.Store
}

func (d *database) Storage() *storage.Store      { return d.store }
func (d *database) PrimaryIndex() *primary.Index { return d.primaryIdx }
func (d *database) TrigramIndex() *trigram.Index { return d.trigramIdx }
func (d *database) SymbolDB() (*symboldb.Reader, bool) {
	return d.symbolReader, d.symbolReader != nil
}
func (d *database) Graph() (*graph.Store, bool) { return d.graphStore, d.graphStore != nil }

var _ service.DatabaseAccess = (*database)(nil)

func storageDir(root string) string { return filepath.Join(root, "storage") }
func primaryDir(root string) string { return filepath.Join(root, "primary_index") }
func trigramDir(root string) string { return filepath.Join(root, "trigram_index") }
func symbolPath(root string) string { return filepath.Join(root, "symbols.kota") }
func graphDir(root string) string   { return filepath.Join(root, "graph") }

// openDatabase opens every component rooted at root, creating on-disk
// directories that do not yet exist. The symbol DB and graph store are
// optional: their absence only disables symbol search / relationship
// analysis, per service.Database's documented nil-ability.
func openDatabase(root string) (*database, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	store, err := storage.Open(storageDir(root), storage.DefaultConfig())
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return nil, err
	}
	metrics.RegisterComponent("storage", true, "")

	primaryIdx, err := openOrInitPrimary(primaryDir(root))
	if err != nil {
		metrics.RegisterComponent("primary_index", false, err.Error())
		store.Close()
		return nil, err
	}
	metrics.RegisterComponent("primary_index", true, "")

	trigramIdx, err := openOrInitTrigram(trigramDir(root))
	if err != nil {
		metrics.RegisterComponent("trigram_index", false, err.Error())
		store.Close()
		return nil, err
	}
	metrics.RegisterComponent("trigram_index", true, "")

	db := &database{
		root:       root,
		store:      store,
		primaryIdx: primaryIdx,
		trigramIdx: trigramIdx,
		symbolPath: symbolPath(root),
	}

	// The symbol DB and graph store are optional components: a corrupted
	// one fails its own open but does not block opening the others, so
	// their absence or failure degrades rather than aborts openDatabase.
	if _, statErr := os.Stat(db.symbolPath); statErr == nil {
		if reader, openErr := symboldb.Open(db.symbolPath); openErr == nil {
			db.symbolReader = reader
			metrics.RegisterComponent("symbol_db", true, "")
		} else {
			metrics.RegisterComponent("symbol_db", false, openErr.Error())
		}
	} else {
		metrics.RegisterComponent("symbol_db", false, "not built yet")
	}

	if g, openErr := graph.Open(graphDir(root), graph.DefaultConfig()); openErr == nil {
		db.graphStore = g
		metrics.RegisterComponent("graph", true, "")
	} else {
		metrics.RegisterComponent("graph", false, openErr.Error())
	}

	return db, nil
}

// openOrInitPrimary loads an existing primary index, or writes a fresh
// empty one when the root has never been saved before.
func openOrInitPrimary(dir string) (*primary.Index, error) {
	if _, err := os.Stat(filepath.Join(dir, "meta", "metadata.json")); os.IsNotExist(err) {
		idx := primary.New(0)
		if err := idx.Save(dir); err != nil {
			return nil, err
		}
		return idx, nil
	}
	return primary.Open(dir, 0)
}

// openOrInitTrigram is the trigram-index analog of openOrInitPrimary.
func openOrInitTrigram(dir string) (*trigram.Index, error) {
	if _, err := os.Stat(filepath.Join(dir, "meta.json")); os.IsNotExist(err) {
		idx := trigram.New()
		if err := idx.Save(dir); err != nil {
			return nil, err
		}
		return idx, nil
	}
	return trigram.Open(dir)
}

func (d *database) Close() error {
	if d.symbolReader != nil {
		d.symbolReader.Close()
	}
	if d.graphStore != nil {
		d.graphStore.Close()
	}
	d.trigramIdx.Flush()
	d.primaryIdx.Flush()
	return d.store.Flush()
}

// pipeline builds an ingest.Pipeline wired to this database's components,
// using the CLI's naiveGoParser as the parser collaborator.
func (d *database) pipeline() *ingest.Pipeline {
	if d.graphStore == nil {
		g, err := graph.Open(graphDir(d.root), graph.DefaultConfig())
		if err == nil {
			d.graphStore = g
		}
	}
	comp := ingest.Components{
		Storage:      d.store,
		PrimaryIdx:   d.primaryIdx,
		TrigramIdx:   d.trigramIdx,
		SymbolDBPath: d.symbolPath,
		Graph:        d.graphStore,
	}
	p := ingest.New(comp, ingest.FilesystemWalker(), naiveGoParser{}, naiveGoParser{})
	return p
}

// reopenSymbolDB reloads the symbol DB reader after a fresh ingestion run
// writes a new symbols.kota; the previous reader's mmap is stale.
func (d *database) reopenSymbolDB() error {
	if d.symbolReader != nil {
		d.symbolReader.Close()
		d.symbolReader = nil
	}
	if _, err := os.Stat(d.symbolPath); err != nil {
		return nil
	}
	reader, err := symboldb.Open(d.symbolPath)
	if err != nil {
		return err
	}
	d.symbolReader = reader
	return nil
}
