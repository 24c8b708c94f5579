package service

import (
	"fmt"
	"strings"

	"github.com/kotadb/kotadb/pkg/graph"
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// CallerInfo is one caller returned by FindCallers: the calling symbol
// plus the edge that names the call site.
type CallerInfo struct {
	Symbol types.ID
	Node   graph.Node
	Edge   graph.Edge
}

// CallersResult is AnalysisService.FindCallers's structured output.
type CallersResult struct {
	Target  types.ID
	Callers []CallerInfo
	Human   string
}

// ImpactResult is AnalysisService.AnalyzeImpact's structured output: the
// transitive closure of symbols that depend on the target, up to
// opts.Limit hops.
type ImpactResult struct {
	Target   types.ID
	Affected []graph.Node
	Human    string
}

// AnalysisService answers find-callers and analyze-impact queries over
// the relationship graph, resolving a user-supplied target (a
// qualified name or a raw id) into a graph node first.
type AnalysisService struct {
	db DatabaseAccess
}

// NewAnalysisService constructs an AnalysisService over db.
func NewAnalysisService(db DatabaseAccess) *AnalysisService {
	return &AnalysisService{db: db}
}

// defaultMaxDepth bounds AnalyzeImpact when opts.Limit is zero; the
// dependency graph is naturally cyclic, so traversal is never unbounded.
const defaultMaxDepth = 5

func (s *AnalysisService) resolveTarget(target string) (types.ID, graph.Node, error) {
	g, ok := s.db.Graph()
	if !ok {
		return types.ID{}, graph.Node{}, kerrors.New(kerrors.NotFound, "dependency graph is not open for this database")
	}
	if id, err := types.ParseID(target); err == nil {
		if n, ok := g.GetNode(id); ok {
			return id, n, nil
		}
	}
	reader, ok := s.db.SymbolDB()
	if !ok {
		return types.ID{}, graph.Node{}, kerrors.Newf(kerrors.NotFound, "no symbol named %q", target)
	}
	matches, err := reader.FindByName(target)
	if err != nil {
		return types.ID{}, graph.Node{}, err
	}
	if len(matches) == 0 {
		return types.ID{}, graph.Node{}, kerrors.Newf(kerrors.NotFound, "no symbol named %q", target)
	}
	id := matches[0].ID
	n, _ := g.GetNode(id)
	return id, n, nil
}

// FindCallers returns every symbol with an edge into target (incoming
// direction, depth 1).
func (s *AnalysisService) FindCallers(opts AnalysisOptions) (CallersResult, error) {
	id, _, err := s.resolveTarget(opts.Target)
	if err != nil {
		return CallersResult{}, err
	}
	g, _ := s.db.Graph()

	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	var callers []CallerInfo
	for _, ev := range g.GetEdges(id, graph.Incoming) {
		node, _ := g.GetNode(ev.NeighborID)
		callers = append(callers, CallerInfo{Symbol: ev.NeighborID, Node: node, Edge: ev.Edge})
		if uint32(len(callers)) >= limit {
			break
		}
	}

	return CallersResult{Target: id, Callers: callers, Human: formatCallersHuman(opts.Target, callers, opts.Quiet)}, nil
}

// AnalyzeImpact returns the transitive closure of symbols reachable by
// walking incoming edges from target, i.e. everything that would be
// affected by changing it. The walk is breadth-first, bounded by
// opts.Limit hops (defaultMaxDepth when unset) and an explicit visited
// set, so cycles (mutual recursion, trait impls) cannot loop it forever.
func (s *AnalysisService) AnalyzeImpact(opts AnalysisOptions) (ImpactResult, error) {
	id, _, err := s.resolveTarget(opts.Target)
	if err != nil {
		return ImpactResult{}, err
	}
	g, _ := s.db.Graph()

	maxDepth := int(opts.Limit)
	if maxDepth == 0 {
		maxDepth = defaultMaxDepth
	}

	visited := map[types.ID]bool{id: true}
	frontier := []types.ID{id}
	var affected []graph.Node

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []types.ID
		for _, cur := range frontier {
			for _, ev := range g.GetEdges(cur, graph.Incoming) {
				if visited[ev.NeighborID] {
					continue
				}
				visited[ev.NeighborID] = true
				if n, ok := g.GetNode(ev.NeighborID); ok {
					affected = append(affected, n)
				}
				next = append(next, ev.NeighborID)
			}
		}
		frontier = next
	}

	return ImpactResult{Target: id, Affected: affected, Human: formatImpactHuman(opts.Target, affected, opts.Quiet)}, nil
}

func formatCallersHuman(target string, callers []CallerInfo, quiet bool) string {
	if quiet {
		return ""
	}
	if len(callers) == 0 {
		return fmt.Sprintf("no callers found for %q", target)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d caller(s) of %q:\n", len(callers), target)
	for _, c := range callers {
		fmt.Fprintf(&b, "  %s (%s) via %s at %d:%d\n", c.Node.QualifiedName, c.Symbol, c.Edge.Kind, c.Edge.Location.Line, c.Edge.Location.Column)
	}
	return b.String()
}

func formatImpactHuman(target string, affected []graph.Node, quiet bool) string {
	if quiet {
		return ""
	}
	if len(affected) == 0 {
		return fmt.Sprintf("no symbols depend on %q", target)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d symbol(s) affected by changing %q:\n", len(affected), target)
	for _, n := range affected {
		fmt.Fprintf(&b, "  %s (%s)\n", n.QualifiedName, n.FilePath)
	}
	return b.String()
}
