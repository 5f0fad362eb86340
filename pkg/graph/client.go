package graph

import "github.com/paper-pigeon/backend/pkg/store"

// GraphClient assembles the researcher/lab graph from a store.Reader.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	reader        store.Reader
	labs          *LabTable
	parallelReads int
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Reader is the source of all collections, usually wrapped in a read-through
// cache. Labs defaults to DefaultLabTable. ParallelReads bounds how many
// researchers have their library and papers fetched concurrently.
type NewGraphClientParams struct {
	Reader        store.Reader
	Labs          *LabTable
	ParallelReads int
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client := graph.NewGraphClient(graph.NewGraphClientParams{
//		Reader:        cache.New(dynamo.NewReader(ddb, dynamo.DefaultTables())),
//		ParallelReads: 8,
//	})
//	g, err := client.BuildGraph(ctx)
func NewGraphClient(params NewGraphClientParams) *GraphClient {
	parallel := params.ParallelReads
	if parallel <= 0 {
		parallel = 8
	}
	labs := params.Labs
	if labs == nil {
		labs = DefaultLabTable()
	}

	return &GraphClient{
		reader:        params.Reader,
		labs:          labs,
		parallelReads: parallel,
	}
}
