package graph

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/logger"
)

// BuildGraph reads every source collection and joins them into a graph of
// researcher and lab nodes. Any read error aborts the build and no partial
// graph is returned.
//
// Researcher nodes follow the order in which researchers were fetched and are
// followed by one node per lab of the lab table. Edges whose endpoints are not
// both known researchers are dropped, as are lab memberships whose display name
// is not in the lab table.
func (g *GraphClient) BuildGraph(ctx context.Context) (common.Graph, error) {
	researchers, err := g.reader.FetchResearchers(ctx)
	if err != nil {
		return common.Graph{}, fmt.Errorf("failed to fetch researchers: %w", err)
	}
	researchers = g.validResearchers(researchers)

	valid := make(map[string]struct{}, len(researchers))
	ids := make([]string, 0, len(researchers))
	for _, r := range researchers {
		valid[r.ResearcherID] = struct{}{}
		ids = append(ids, r.ResearcherID)
	}

	var (
		paperEdges   []common.PaperEdge
		advisorEdges []common.AdvisorEdge
		descriptions []common.Description
		metrics      []common.Metric
	)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if paperEdges, err = g.reader.FetchPaperEdges(gCtx); err != nil {
			return fmt.Errorf("failed to fetch paper edges: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if advisorEdges, err = g.reader.FetchAdvisorEdges(gCtx); err != nil {
			return fmt.Errorf("failed to fetch advisor edges: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if descriptions, err = g.reader.FetchDescriptions(gCtx, ids); err != nil {
			return fmt.Errorf("failed to fetch descriptions: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if metrics, err = g.reader.FetchMetrics(gCtx, ids); err != nil {
			return fmt.Errorf("failed to fetch metrics: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return common.Graph{}, err
	}

	about := make(map[string]*string, len(descriptions))
	for _, d := range descriptions {
		text := ""
		if d.About != nil {
			text = *d.About
		}
		about[d.ResearcherID] = &text
	}

	influence := make(map[string]*float64, len(metrics))
	for _, m := range metrics {
		influence[m.ResearcherID] = m.Influence
	}

	researcherNodes := make([]*common.ResearcherNode, len(researchers))

	eg, gCtx = errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelReads)
	for i, r := range researchers {
		eg.Go(func() error {
			papers, err := g.researcherPapers(gCtx, r.ResearcherID)
			if err != nil {
				return err
			}
			researcherNodes[i] = researcherNode(r, papers, about[r.ResearcherID], influence[r.ResearcherID])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return common.Graph{}, err
	}

	nodes := make(common.Nodes, 0, len(researcherNodes)+len(g.labs.All()))
	for _, n := range researcherNodes {
		nodes = append(nodes, n)
	}
	for _, l := range g.labs.All() {
		nodes = append(nodes, &common.LabNode{
			ID:   l.ID,
			Name: l.Name,
			Type: common.NodeTypeLab,
			Val:  2,
		})
	}

	links := make([]common.Link, 0, len(paperEdges)+len(advisorEdges))
	dropped := 0
	for _, e := range paperEdges {
		if !known(valid, e.ResearcherOneID, e.ResearcherTwoID) {
			dropped++
			continue
		}
		links = append(links, common.Link{Source: e.ResearcherOneID, Target: e.ResearcherTwoID, Type: common.LinkTypePaper})
	}
	for _, e := range advisorEdges {
		if !known(valid, e.AdviseeID, e.AdvisorID) {
			dropped++
			continue
		}
		links = append(links, common.Link{Source: e.AdviseeID, Target: e.AdvisorID, Type: common.LinkTypeAdvisor})
	}
	for _, r := range researchers {
		for _, name := range r.Labs {
			labID, ok := g.labs.Resolve(name)
			if !ok {
				dropped++
				continue
			}
			links = append(links, common.Link{Source: r.ResearcherID, Target: labID, Type: common.LinkTypeResearcherLab})
		}
	}

	logger.Info("[Graph] Built graph", "nodes", len(nodes), "links", len(links), "dropped_links", dropped)

	return common.Graph{Nodes: nodes, Links: links}, nil
}

// validResearchers drops records without an id, records whose id is a lab id
// and repeated ids. The first record for an id wins.
func (g *GraphClient) validResearchers(in []common.Researcher) []common.Researcher {
	seen := make(map[string]struct{}, len(in))
	out := make([]common.Researcher, 0, len(in))
	for _, r := range in {
		switch {
		case r.ResearcherID == "":
			logger.Debug("[Graph] Skipping researcher without id", "name", r.Name)
			continue
		case g.labs.HasID(r.ResearcherID):
			logger.Warn("[Graph] Skipping researcher whose id is a lab id", "researcher_id", r.ResearcherID)
			continue
		}
		if _, ok := seen[r.ResearcherID]; ok {
			logger.Debug("[Graph] Skipping duplicate researcher", "researcher_id", r.ResearcherID)
			continue
		}
		seen[r.ResearcherID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// researcherPapers returns the papers in a researcher's library, in library
// order. Library entries pointing at unknown papers are skipped.
func (g *GraphClient) researcherPapers(ctx context.Context, researcherID string) ([]common.Paper, error) {
	entries, err := g.reader.FetchLibraryEntries(ctx, researcherID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch library of %s: %w", researcherID, err)
	}

	docIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.DocumentID != "" {
			docIDs = append(docIDs, e.DocumentID)
		}
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	papers, err := g.reader.FetchPapers(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch papers of %s: %w", researcherID, err)
	}

	byID := make(map[string]common.Paper, len(papers))
	for _, p := range papers {
		byID[p.DocumentID] = p
	}

	out := make([]common.Paper, 0, len(papers))
	for _, id := range docIDs {
		p, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, p)
		delete(byID, id)
	}
	return out, nil
}

func researcherNode(r common.Researcher, papers []common.Paper, about *string, influence *float64) *common.ResearcherNode {
	summaries := make([]common.PaperSummary, 0, len(papers))
	var tags []string
	for _, p := range papers {
		paperTags := p.Tags
		if paperTags == nil {
			paperTags = []string{}
		}
		summaries = append(summaries, common.PaperSummary{
			Title:      p.Title,
			Year:       p.Year,
			DocumentID: p.DocumentID,
			Tags:       paperTags,
		})
		tags = append(tags, paperTags...)
	}

	return &common.ResearcherNode{
		ID:          r.ResearcherID,
		Name:        r.Name,
		Type:        common.NodeTypeResearcher,
		Val:         1,
		Advisor:     r.Advisor,
		ContactInfo: orEmpty(r.ContactInfo),
		Labs:        orEmpty(r.Labs),
		Standing:    r.Standing,
		Papers:      summaries,
		Tags:        sortedUnique(tags),
		Influence:   influence,
		About:       about,
	}
}

// sortedUnique returns the ascending, duplicate-free form of tags. It never
// returns nil.
func sortedUnique(tags []string) []string {
	out := slices.Clone(tags)
	if out == nil {
		return []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func known(valid map[string]struct{}, a, b string) bool {
	_, okA := valid[a]
	_, okB := valid[b]
	return okA && okB
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
