// Package memstore implements store.Reader over in-memory collections. It is
// loaded from a JSON fixture for local development and used as the fake store
// in tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/store"
)

const (
	OpResearchers  = "researchers"
	OpPaperEdges   = "paper_edges"
	OpAdvisorEdges = "advisor_edges"
	OpLibrary      = "library"
	OpPapers       = "papers"
	OpDescriptions = "descriptions"
	OpMetrics      = "metrics"
	OpLabInfo      = "lab_info"
)

// Data is the fixture layout. Every collection is optional.
type Data struct {
	Researchers  []common.Researcher   `json:"researchers"`
	PaperEdges   []common.PaperEdge    `json:"paper_edges"`
	AdvisorEdges []common.AdvisorEdge  `json:"advisor_edges"`
	Library      []common.LibraryEntry `json:"library"`
	Papers       []common.Paper        `json:"papers"`
	Descriptions []common.Description  `json:"descriptions"`
	Metrics      []common.Metric       `json:"metrics"`
	LabInfo      []common.LabInfo      `json:"lab_info"`
}

// Store serves reads from Data. It counts every store request per operation
// (one per chunk for keyed reads) and can be told to fail.
type Store struct {
	mu    sync.Mutex
	data  Data
	calls map[string]int
	keys  map[string][][]string
	fail  map[string]error
	all   error
}

var _ store.Reader = (*Store)(nil)

func New(data Data) *Store {
	return &Store{
		data:  data,
		calls: make(map[string]int),
		keys:  make(map[string][][]string),
		fail:  make(map[string]error),
	}
}

// Load reads a JSON fixture from path.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return New(data), nil
}

// SetData replaces the collections. Call counters are kept.
func (s *Store) SetData(data Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

// FailAll makes every operation return err. A nil err clears it.
func (s *Store) FailAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = err
}

// Fail makes a single operation return err. A nil err clears it.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns how many store requests op has issued.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of store requests across all operations.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Keys returns the key chunks op was called with, in call order.
func (s *Store) Keys(op string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.keys[op]))
	copy(out, s.keys[op])
	return out
}

func (s *Store) begin(op string, keys []string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	if keys != nil {
		s.keys[op] = append(s.keys[op], append([]string(nil), keys...))
	}

	if s.all != nil {
		return Data{}, common.E(common.KindStoreUnavailable, op, s.all)
	}
	if err := s.fail[op]; err != nil {
		return Data{}, common.E(common.KindStoreUnavailable, op, err)
	}
	return s.data, nil
}

func (s *Store) FetchResearchers(ctx context.Context) ([]common.Researcher, error) {
	data, err := s.begin(OpResearchers, nil)
	if err != nil {
		return nil, err
	}
	return append([]common.Researcher{}, data.Researchers...), nil
}

func (s *Store) FetchPaperEdges(ctx context.Context) ([]common.PaperEdge, error) {
	data, err := s.begin(OpPaperEdges, nil)
	if err != nil {
		return nil, err
	}
	return append([]common.PaperEdge{}, data.PaperEdges...), nil
}

func (s *Store) FetchAdvisorEdges(ctx context.Context) ([]common.AdvisorEdge, error) {
	data, err := s.begin(OpAdvisorEdges, nil)
	if err != nil {
		return nil, err
	}
	return append([]common.AdvisorEdge{}, data.AdvisorEdges...), nil
}

func (s *Store) FetchLibraryEntries(ctx context.Context, researcherID string) ([]common.LibraryEntry, error) {
	data, err := s.begin(OpLibrary, []string{researcherID})
	if err != nil {
		return nil, err
	}

	out := make([]common.LibraryEntry, 0)
	for _, e := range data.Library {
		if e.ResearcherID == researcherID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) FetchPapers(ctx context.Context, documentIDs []string) ([]common.Paper, error) {
	return store.BatchGet(ctx, documentIDs, func(ctx context.Context, chunk []string) ([]common.Paper, error) {
		data, err := s.begin(OpPapers, chunk)
		if err != nil {
			return nil, err
		}
		return pick(data.Papers, chunk, func(p common.Paper) string { return p.DocumentID }), nil
	})
}

func (s *Store) FetchDescriptions(ctx context.Context, researcherIDs []string) ([]common.Description, error) {
	return store.BatchGet(ctx, researcherIDs, func(ctx context.Context, chunk []string) ([]common.Description, error) {
		data, err := s.begin(OpDescriptions, chunk)
		if err != nil {
			return nil, err
		}
		return pick(data.Descriptions, chunk, func(d common.Description) string { return d.ResearcherID }), nil
	})
}

func (s *Store) FetchMetrics(ctx context.Context, researcherIDs []string) ([]common.Metric, error) {
	return store.BatchGet(ctx, researcherIDs, func(ctx context.Context, chunk []string) ([]common.Metric, error) {
		data, err := s.begin(OpMetrics, chunk)
		if err != nil {
			return nil, err
		}
		return pick(data.Metrics, chunk, func(m common.Metric) string { return m.ResearcherID }), nil
	})
}

func (s *Store) FetchLabInfo(ctx context.Context, labIDs []string) ([]common.LabInfo, error) {
	return store.BatchGet(ctx, labIDs, func(ctx context.Context, chunk []string) ([]common.LabInfo, error) {
		data, err := s.begin(OpLabInfo, chunk)
		if err != nil {
			return nil, err
		}
		return pick(data.LabInfo, chunk, func(l common.LabInfo) string { return l.LabID }), nil
	})
}

// pick returns the items whose key is in keys, in collection order. Like a
// point lookup, a key matches at most one item.
func pick[T any](items []T, keys []string, key func(T) string) []T {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	out := make([]T, 0, len(keys))
	for _, it := range items {
		k := key(it)
		if _, ok := want[k]; ok {
			out = append(out, it)
			delete(want, k)
		}
	}
	return out
}
