package types

import "github.com/kotadb/kotadb/pkg/kerrors"

// RelationKind enumerates the directed relationship kinds an edge in the
// dependency graph can carry.
type RelationKind uint8

const (
	RelationCalls RelationKind = iota + 1
	RelationReferences
	RelationImplements
	RelationExtends
	RelationImports
)

func (k RelationKind) String() string {
	switch k {
	case RelationCalls:
		return "calls"
	case RelationReferences:
		return "references"
	case RelationImplements:
		return "implements"
	case RelationExtends:
		return "extends"
	case RelationImports:
		return "imports"
	default:
		return "unknown"
	}
}

// ReferenceKind enumerates the raw reference shapes the parser collaborator
// reports before they are mapped to a RelationKind by the bridge.
type ReferenceKind uint8

const (
	RefFunctionCall ReferenceKind = iota + 1
	RefMethodCall
	RefTypeUsage
	RefFieldAccess
	RefTraitImpl
	RefMacroInvocation
	RefImport
)

// RelationKindFromReference maps a raw reference kind to the relationship
// kind recorded in the dependency graph.
func RelationKindFromReference(rk ReferenceKind) RelationKind {
	switch rk {
	case RefFunctionCall, RefMethodCall, RefMacroInvocation:
		return RelationCalls
	case RefTraitImpl:
		return RelationImplements
	case RefImport:
		return RelationImports
	case RefFieldAccess, RefTypeUsage:
		return RelationReferences
	default:
		return RelationReferences
	}
}

// Location pinpoints a reference within a source file.
type Location struct {
	Line    uint32
	Column  uint32
	Context string // optional surrounding source snippet
}

// Reference is a raw, unresolved mention of a name found by the parser
// collaborator while scanning a source file.
type Reference struct {
	Name     string
	Kind     ReferenceKind
	Location Location
}

// Edge is a directed relationship between two symbols. Self-edges
// (Source == Target) are forbidden by NewEdge.
type Edge struct {
	Source   ID
	Target   ID
	Kind     RelationKind
	Location Location
}

// NewEdge validates and constructs an Edge.
func NewEdge(source, target ID, kind RelationKind, loc Location) (Edge, error) {
	if source.Equal(target) {
		return Edge{}, kerrors.New(kerrors.Validation, "self-edges are forbidden").WithField("target")
	}
	return Edge{Source: source, Target: target, Kind: kind, Location: loc}, nil
}
