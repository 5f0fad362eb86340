package store

import (
	"context"

	"github.com/paper-pigeon/backend/pkg/common"
)

// MaxBatchKeys is the largest number of keys sent in one point-lookup request.
const MaxBatchKeys = 100

// Reader defines bulk reads over the source collections the graph is built from.
// Full-collection reads scan the whole table, keyed reads are chunked into
// batches of at most MaxBatchKeys keys and the chunk results are concatenated
// in chunk order.
//
// An empty collection or an empty key set yields an empty slice and no error.
// Store failures are returned unchanged in meaning (classified as
// common.KindStoreUnavailable) and are never retried here.
type Reader interface {
	FetchResearchers(ctx context.Context) ([]common.Researcher, error)
	FetchPaperEdges(ctx context.Context) ([]common.PaperEdge, error)
	FetchAdvisorEdges(ctx context.Context) ([]common.AdvisorEdge, error)

	FetchLibraryEntries(ctx context.Context, researcherID string) ([]common.LibraryEntry, error)

	FetchPapers(ctx context.Context, documentIDs []string) ([]common.Paper, error)
	FetchDescriptions(ctx context.Context, researcherIDs []string) ([]common.Description, error)
	FetchMetrics(ctx context.Context, researcherIDs []string) ([]common.Metric, error)
	FetchLabInfo(ctx context.Context, labIDs []string) ([]common.LabInfo, error)
}
