// Package service implements the service layer: stateless façades
// over the storage and index components, exposing request/response types
// suitable for transport over HTTP, RPC, or a CLI without containing any
// transport logic itself.
package service

import (
	"github.com/kotadb/kotadb/pkg/graph"
	"github.com/kotadb/kotadb/pkg/index/primary"
	"github.com/kotadb/kotadb/pkg/index/trigram"
	"github.com/kotadb/kotadb/pkg/query"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/symboldb"
)

// DatabaseAccess is the capability interface every service is
// constructed over: the storage and index handles, plus the optional
// symbol DB and graph store a database may or may not have opened.
type DatabaseAccess interface {
	Storage() *storage.Store
	PrimaryIndex() *primary.Index
	TrigramIndex() *trigram.Index
	SymbolDB() (*symboldb.Reader, bool)
	Graph() (*graph.Store, bool)
}

// Database is the concrete DatabaseAccess a database root produces once
// every component has been opened. SymbolReader and GraphStore are nil
// when ingestion was run with NoSymbols or the database predates them.
type Database struct {
	Store        *storage.Store
	Primary      *primary.Index
	Trigram      *trigram.Index
	SymbolReader *symboldb.Reader
	GraphStore   *graph.Store
}

func (d *Database) Storage() *storage.Store             { return d.Store }
func (d *Database) PrimaryIndex() *primary.Index        { return d.Primary }
func (d *Database) TrigramIndex() *trigram.Index        { return d.Trigram }
func (d *Database) SymbolDB() (*symboldb.Reader, bool)   { return d.SymbolReader, d.SymbolReader != nil }
func (d *Database) Graph() (*graph.Store, bool)          { return d.GraphStore, d.GraphStore != nil }

// router builds the query router over a DatabaseAccess's indices,
// used by SearchService. It is re-derived per call rather than cached
// because DatabaseAccess may reopen components (e.g. after a reindex).
func router(db DatabaseAccess) *query.Router {
	return query.New(db.PrimaryIndex(), db.TrigramIndex(), db.Storage())
}
