// Package cache provides a process-lifetime read-through cache in front of a
// store.Reader. Entries are never invalidated.
package cache

import (
	"context"
	"sync"

	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/store"
	"github.com/paper-pigeon/backend/pkg/telemetry"
)

// Reader caches researchers, papers and library entries. Every other
// collection is passed through to the wrapped reader.
//
// Locks are never held across a store call, so two concurrent misses for the
// same key may both read from the store. The later insert wins.
type Reader struct {
	next store.Reader

	researchersMu sync.RWMutex
	researchers   []common.Researcher

	papersMu sync.RWMutex
	papers   map[string]common.Paper

	libraryMu sync.RWMutex
	library   map[string][]common.LibraryEntry
}

var _ store.Reader = (*Reader)(nil)

func New(next store.Reader) *Reader {
	return &Reader{
		next:    next,
		papers:  make(map[string]common.Paper),
		library: make(map[string][]common.LibraryEntry),
	}
}

// FetchResearchers treats the cached list as complete once it holds any entry.
func (c *Reader) FetchResearchers(ctx context.Context) ([]common.Researcher, error) {
	c.researchersMu.RLock()
	cached := c.researchers
	c.researchersMu.RUnlock()

	if len(cached) > 0 {
		hit("researchers")
		return append([]common.Researcher(nil), cached...), nil
	}
	miss("researchers")

	fetched, err := c.next.FetchResearchers(ctx)
	if err != nil {
		return nil, err
	}

	c.researchersMu.Lock()
	c.researchers = append([]common.Researcher(nil), fetched...)
	c.researchersMu.Unlock()

	return fetched, nil
}

// FetchPapers serves cached keys from memory and fetches the rest in one
// batched call. The result is the cached papers followed by the fetched ones.
func (c *Reader) FetchPapers(ctx context.Context, documentIDs []string) ([]common.Paper, error) {
	keys := store.DedupeStrings(documentIDs)

	out := make([]common.Paper, 0, len(keys))
	var missing []string

	c.papersMu.RLock()
	for _, id := range keys {
		if p, ok := c.papers[id]; ok {
			out = append(out, p)
			continue
		}
		missing = append(missing, id)
	}
	c.papersMu.RUnlock()

	if len(out) > 0 {
		telemetry.CacheLookups.WithLabelValues("papers", "hit").Add(float64(len(out)))
	}
	if len(missing) == 0 {
		return out, nil
	}
	telemetry.CacheLookups.WithLabelValues("papers", "miss").Add(float64(len(missing)))

	fetched, err := c.next.FetchPapers(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.papersMu.Lock()
	for _, p := range fetched {
		c.papers[p.DocumentID] = p
	}
	c.papersMu.Unlock()

	logger.Debug("[Cache] Fetched papers", "cached", len(out), "fetched", len(fetched))
	return append(out, fetched...), nil
}

// FetchLibraryEntries caches per researcher, including empty results.
func (c *Reader) FetchLibraryEntries(ctx context.Context, researcherID string) ([]common.LibraryEntry, error) {
	c.libraryMu.RLock()
	cached, ok := c.library[researcherID]
	c.libraryMu.RUnlock()

	if ok {
		hit("library")
		return append([]common.LibraryEntry{}, cached...), nil
	}
	miss("library")

	fetched, err := c.next.FetchLibraryEntries(ctx, researcherID)
	if err != nil {
		return nil, err
	}

	stored := append([]common.LibraryEntry{}, fetched...)
	c.libraryMu.Lock()
	c.library[researcherID] = stored
	c.libraryMu.Unlock()

	return fetched, nil
}

func (c *Reader) FetchPaperEdges(ctx context.Context) ([]common.PaperEdge, error) {
	return c.next.FetchPaperEdges(ctx)
}

func (c *Reader) FetchAdvisorEdges(ctx context.Context) ([]common.AdvisorEdge, error) {
	return c.next.FetchAdvisorEdges(ctx)
}

func (c *Reader) FetchDescriptions(ctx context.Context, researcherIDs []string) ([]common.Description, error) {
	return c.next.FetchDescriptions(ctx, researcherIDs)
}

func (c *Reader) FetchMetrics(ctx context.Context, researcherIDs []string) ([]common.Metric, error) {
	return c.next.FetchMetrics(ctx, researcherIDs)
}

func (c *Reader) FetchLabInfo(ctx context.Context, labIDs []string) ([]common.LabInfo, error) {
	return c.next.FetchLabInfo(ctx, labIDs)
}

func hit(collection string) {
	telemetry.CacheLookups.WithLabelValues(collection, "hit").Inc()
}

func miss(collection string) {
	telemetry.CacheLookups.WithLabelValues(collection, "miss").Inc()
}
