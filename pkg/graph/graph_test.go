package graph

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/store/cache"
	"github.com/paper-pigeon/backend/pkg/store/memstore"
)

func strp(s string) *string   { return &s }
func intp(i int) *int         { return &i }
func fltp(f float64) *float64 { return &f }

func build(t *testing.T, data memstore.Data) common.Graph {
	t.Helper()
	client := NewGraphClient(NewGraphClientParams{Reader: memstore.New(data)})
	g, err := client.BuildGraph(context.Background())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	return g
}

func researcherNodes(g common.Graph) map[string]*common.ResearcherNode {
	out := map[string]*common.ResearcherNode{}
	for _, n := range g.Nodes {
		if r, ok := n.(*common.ResearcherNode); ok {
			out[r.ID] = r
		}
	}
	return out
}

func nodeIDs(g common.Graph) []string {
	out := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n.NodeID())
	}
	return out
}

func sortedLinks(links []common.Link) []common.Link {
	out := slices.Clone(links)
	slices.SortFunc(out, func(a, b common.Link) int {
		return strings.Compare(a.Source+a.Target+string(a.Type), b.Source+b.Target+string(b.Type))
	})
	return out
}

func sampleData() memstore.Data {
	return memstore.Data{
		Researchers: []common.Researcher{
			{ResearcherID: "r1", Name: "Ada", Advisor: strp("r2"), Labs: []string{"H2 Lab", "Unknown Lab"}, Standing: strp("PhD")},
			{ResearcherID: "r2", Name: "Grace", Labs: []string{"MISL"}, ContactInfo: []string{"grace@uw.edu"}},
			{ResearcherID: "r3", Name: "Linus"},
		},
		PaperEdges: []common.PaperEdge{
			{ResearcherOneID: "r1", ResearcherTwoID: "r2"},
			{ResearcherOneID: "r1", ResearcherTwoID: "ghost"},
		},
		AdvisorEdges: []common.AdvisorEdge{
			{AdviseeID: "r1", AdvisorID: "r2"},
			{AdviseeID: "ghost", AdvisorID: "r2"},
		},
		Library: []common.LibraryEntry{
			{ResearcherID: "r1", DocumentID: "p2"},
			{ResearcherID: "r1", DocumentID: "p1"},
			{ResearcherID: "r1", DocumentID: "gone"},
			{ResearcherID: "r2", DocumentID: "p1"},
		},
		Papers: []common.Paper{
			{DocumentID: "p1", Title: strp("Graph Neural Nets"), Year: intp(2021), Tags: []string{"ml", "graphs"}},
			{DocumentID: "p2", Title: strp("Parsing"), Tags: []string{"nlp", "ml"}},
		},
		Descriptions: []common.Description{
			{ResearcherID: "r1", About: strp("Works on NLP.")},
			{ResearcherID: "r2"},
		},
		Metrics: []common.Metric{
			{ResearcherID: "r1", Influence: fltp(0.75)},
		},
	}
}

func TestBuildGraph_EmptyStore(t *testing.T) {
	g := build(t, memstore.Data{})

	if len(g.Nodes) != len(Labs) {
		t.Fatalf("expected %d lab nodes, got %d", len(Labs), len(g.Nodes))
	}
	if len(g.Links) != 0 {
		t.Fatalf("expected no links, got %v", g.Links)
	}
	for i, n := range g.Nodes {
		lab, ok := n.(*common.LabNode)
		if !ok {
			t.Fatalf("node %d: expected lab node, got %T", i, n)
		}
		if lab.ID != Labs[i].ID || lab.Name != Labs[i].Name || lab.Val != 2 {
			t.Errorf("node %d: got %+v, want id=%s name=%s val=2", i, lab, Labs[i].ID, Labs[i].Name)
		}
	}

	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"links":[]`) {
		t.Fatalf("expected empty links array, got %s", raw)
	}
}

func TestBuildGraph_OneResearcherOnePaperOneTag(t *testing.T) {
	g := build(t, memstore.Data{
		Researchers: []common.Researcher{{ResearcherID: "R", Name: "Rhea"}},
		Library:     []common.LibraryEntry{{ResearcherID: "R", DocumentID: "P"}},
		Papers:      []common.Paper{{DocumentID: "P", Title: strp("Paper"), Year: intp(2020), Tags: []string{"nlp"}}},
	})

	nodes := researcherNodes(g)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 researcher, got %d", len(nodes))
	}
	r := nodes["R"]
	if !reflect.DeepEqual(r.Tags, []string{"nlp"}) {
		t.Errorf("tags = %v", r.Tags)
	}
	want := []common.PaperSummary{{Title: strp("Paper"), Year: intp(2020), DocumentID: "P", Tags: []string{"nlp"}}}
	if !reflect.DeepEqual(r.Papers, want) {
		t.Errorf("papers = %+v, want %+v", r.Papers, want)
	}
	if r.Val != 1 || r.Type != common.NodeTypeResearcher {
		t.Errorf("val/type = %d/%s", r.Val, r.Type)
	}
}

func TestBuildGraph_DropsDanglingEdges(t *testing.T) {
	g := build(t, sampleData())

	ids := map[string]bool{}
	for _, id := range nodeIDs(g) {
		ids[id] = true
	}
	for _, l := range g.Links {
		if !ids[l.Source] || !ids[l.Target] {
			t.Errorf("link %+v references a missing node", l)
		}
	}

	want := []common.Link{
		{Source: "r1", Target: "r2", Type: common.LinkTypePaper},
		{Source: "r1", Target: "r2", Type: common.LinkTypeAdvisor},
		{Source: "r1", Target: "h2_lab", Type: common.LinkTypeResearcherLab},
		{Source: "r2", Target: "molecular_information_systems_lab", Type: common.LinkTypeResearcherLab},
	}
	if got := sortedLinks(g.Links); !reflect.DeepEqual(got, sortedLinks(want)) {
		t.Fatalf("links = %+v, want %+v", got, want)
	}
}

func TestBuildGraph_ResearcherFields(t *testing.T) {
	nodes := researcherNodes(build(t, sampleData()))

	r1 := nodes["r1"]
	if r1.Name != "Ada" || *r1.Advisor != "r2" || *r1.Standing != "PhD" {
		t.Errorf("r1 scalar fields = %q %q %q", r1.Name, *r1.Advisor, *r1.Standing)
	}
	if !reflect.DeepEqual(r1.Tags, []string{"graphs", "ml", "nlp"}) {
		t.Errorf("r1 tags = %v", r1.Tags)
	}
	if len(r1.Papers) != 2 || r1.Papers[0].DocumentID != "p2" || r1.Papers[1].DocumentID != "p1" {
		t.Fatalf("r1 papers = %+v, want p2 then p1", r1.Papers)
	}
	if !reflect.DeepEqual(r1.Papers[0].Tags, []string{"nlp", "ml"}) {
		t.Errorf("paper tags keep their stored order, got %v", r1.Papers[0].Tags)
	}
	if r1.Papers[0].Year != nil {
		t.Errorf("expected nil year, got %d", *r1.Papers[0].Year)
	}
	if *r1.About != "Works on NLP." {
		t.Errorf("r1 about = %q", *r1.About)
	}
	if math.Abs(*r1.Influence-0.75) > 1e-9 {
		t.Errorf("r1 influence = %v", *r1.Influence)
	}

	r2 := nodes["r2"]
	if r2.About == nil || *r2.About != "" {
		t.Errorf("description without text should give empty about, got %v", r2.About)
	}
	if r2.Influence != nil || r2.Advisor != nil {
		t.Errorf("r2 influence/advisor should be nil")
	}

	r3 := nodes["r3"]
	if r3.About != nil || r3.Influence != nil {
		t.Errorf("r3 about/influence should be nil")
	}
	if r3.Papers == nil || len(r3.Papers) != 0 {
		t.Errorf("r3 papers = %#v, want empty non-nil", r3.Papers)
	}
	for name, got := range map[string][]string{"tags": r3.Tags, "contact_info": r3.ContactInfo, "labs": r3.Labs} {
		if got == nil || len(got) != 0 {
			t.Errorf("r3 %s = %#v, want empty non-nil", name, got)
		}
	}
}

func TestBuildGraph_NodeOrder(t *testing.T) {
	ids := nodeIDs(build(t, sampleData()))

	if !slices.Equal(ids[:3], []string{"r1", "r2", "r3"}) {
		t.Fatalf("researchers first in fetch order, got %v", ids[:3])
	}
	for i, l := range Labs {
		if ids[3+i] != l.ID {
			t.Errorf("position %d: got %s, want %s", 3+i, ids[3+i], l.ID)
		}
	}
}

func TestBuildGraph_EveryLabOnce(t *testing.T) {
	g := build(t, sampleData())

	counts := map[string]int{}
	for _, n := range g.Nodes {
		if n.NodeType() == common.NodeTypeLab {
			counts[n.NodeID()]++
		}
	}
	if len(counts) != len(Labs) {
		t.Fatalf("expected %d labs, got %d", len(Labs), len(counts))
	}
	for _, l := range Labs {
		if counts[l.ID] != 1 {
			t.Errorf("lab %s appears %d times", l.ID, counts[l.ID])
		}
	}
}

func TestBuildGraph_UniqueNodeIDs(t *testing.T) {
	data := sampleData()
	data.Researchers = append(data.Researchers,
		common.Researcher{ResearcherID: "r1", Name: "Duplicate"},
		common.Researcher{ResearcherID: "h2_lab", Name: "Colliding"},
		common.Researcher{Name: "No id"},
	)
	g := build(t, data)

	sorted := slices.Clone(nodeIDs(g))
	slices.Sort(sorted)
	if len(sorted) != len(slices.Compact(slices.Clone(sorted))) {
		t.Fatalf("duplicate node ids in %v", sorted)
	}
	nodes := researcherNodes(g)
	if len(nodes) != 3 {
		t.Fatalf("expected 3 researchers, got %d", len(nodes))
	}
	if nodes["r1"].Name != "Ada" {
		t.Errorf("first occurrence wins, got %q", nodes["r1"].Name)
	}
}

func TestBuildGraph_Idempotent(t *testing.T) {
	client := NewGraphClient(NewGraphClientParams{
		Reader:        cache.New(memstore.New(sampleData())),
		ParallelReads: 2,
	})
	ctx := context.Background()

	first, err := client.BuildGraph(ctx)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := client.BuildGraph(ctx)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if !slices.Equal(nodeIDs(first), nodeIDs(second)) {
		t.Errorf("node ids differ: %v vs %v", nodeIDs(first), nodeIDs(second))
	}
	if !reflect.DeepEqual(sortedLinks(first.Links), sortedLinks(second.Links)) {
		t.Errorf("links differ")
	}
	a, b := researcherNodes(first), researcherNodes(second)
	for id, n := range a {
		if !slices.Equal(n.Tags, b[id].Tags) || !slices.IsSorted(n.Tags) {
			t.Errorf("%s tags = %v vs %v", id, n.Tags, b[id].Tags)
		}
	}
}

func TestBuildGraph_SameResultAcrossParallelism(t *testing.T) {
	var graphs []common.Graph
	for _, p := range []int{1, 3, 16} {
		client := NewGraphClient(NewGraphClientParams{Reader: memstore.New(sampleData()), ParallelReads: p})
		g, err := client.BuildGraph(context.Background())
		if err != nil {
			t.Fatalf("parallelism %d: %v", p, err)
		}
		graphs = append(graphs, g)
	}

	for _, g := range graphs[1:] {
		if !slices.Equal(nodeIDs(graphs[0]), nodeIDs(g)) {
			t.Errorf("node order differs: %v vs %v", nodeIDs(graphs[0]), nodeIDs(g))
		}
		if !reflect.DeepEqual(graphs[0].Links, g.Links) {
			t.Errorf("link order differs")
		}
	}
}

func TestBuildGraph_AbortsOnReadError(t *testing.T) {
	boom := errors.New("dynamo unavailable")

	for _, op := range []string{
		memstore.OpResearchers,
		memstore.OpPaperEdges,
		memstore.OpAdvisorEdges,
		memstore.OpDescriptions,
		memstore.OpMetrics,
		memstore.OpLibrary,
		memstore.OpPapers,
	} {
		t.Run(op, func(t *testing.T) {
			mem := memstore.New(sampleData())
			mem.Fail(op, boom)
			client := NewGraphClient(NewGraphClientParams{Reader: mem})

			g, err := client.BuildGraph(context.Background())
			if !errors.Is(err, boom) || !errors.Is(err, common.ErrStoreUnavailable) {
				t.Fatalf("expected store error wrapping %v, got %v", boom, err)
			}
			if len(g.Nodes) != 0 || len(g.Links) != 0 {
				t.Fatalf("expected no partial graph, got %d nodes %d links", len(g.Nodes), len(g.Links))
			}
		})
	}
}

func TestBuildGraph_JSONShape(t *testing.T) {
	g := build(t, memstore.Data{
		Researchers: []common.Researcher{{ResearcherID: "r1", Name: "Ada"}},
	})

	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Nodes []map[string]any `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	r := decoded.Nodes[0]
	for _, key := range []string{"advisor", "standing", "influence", "about"} {
		if v, ok := r[key]; !ok || v != nil {
			t.Errorf("%s = %v (present=%v), want null", key, v, ok)
		}
	}
	for _, key := range []string{"contact_info", "labs", "papers", "tags"} {
		if !reflect.DeepEqual(r[key], []any{}) {
			t.Errorf("%s = %#v, want []", key, r[key])
		}
	}

	var roundTrip common.Graph
	if err := json.Unmarshal(raw, &roundTrip); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if !slices.Equal(nodeIDs(g), nodeIDs(roundTrip)) {
		t.Errorf("round trip ids = %v", nodeIDs(roundTrip))
	}
}

func TestLabTable(t *testing.T) {
	tbl := DefaultLabTable()

	tests := []struct {
		name   string
		input  string
		wantID string
		wantOK bool
	}{
		{name: "exact name", input: "MISL", wantID: "molecular_information_systems_lab", wantOK: true},
		{name: "case sensitive", input: "misl"},
		{name: "no trimming", input: " MISL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := tbl.Resolve(tt.input)
			if ok != tt.wantOK || id != tt.wantID {
				t.Fatalf("Resolve(%q) = %q, %v; want %q, %v", tt.input, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}

	if !tbl.HasID("wildlab") || tbl.HasID("Wildlab") {
		t.Errorf("HasID must match ids exactly")
	}
	if n := len(tbl.All()); n != 25 {
		t.Errorf("expected 25 labs, got %d", n)
	}
}
