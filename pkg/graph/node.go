// Package graph implements the relationship graph store: a durable
// directed multigraph of symbol relationships, persisted as fixed-size
// pages under nodes/ and edges/ with a deterministic, versioned binary
// encoding that must round-trip exactly.
package graph

import (
	"time"

	"github.com/kotadb/kotadb/pkg/types"
)

// Location is a source span, reused for both nodes and edges.
type Location struct {
	StartLine   uint32
	StartColumn uint32
	EndLine     uint32
	EndColumn   uint32
}

// Node is a graph node: a named program entity plus free-form metadata.
type Node struct {
	ID            types.ID
	NodeType      string
	QualifiedName string
	FilePath      string
	Location      Location
	Metadata      map[string]string
	UpdatedAt     time.Time
}

// Direction selects which adjacency list get_edges reads.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

// Edge is a directed, typed relationship between two node ids. Location
// reuses types.Location (line, column, optional context snippet) rather
// than the node Location span.
type Edge struct {
	Source   types.ID
	Target   types.ID
	Kind     types.RelationKind
	Location types.Location
}
