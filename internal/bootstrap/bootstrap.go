// Package bootstrap wires the process-scoped components from the environment.
// The server, the worker and the CLI share it so all three build the graph
// the same way.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paper-pigeon/backend/internal/graphcache"
	"github.com/paper-pigeon/backend/internal/rebuild"
	"github.com/paper-pigeon/backend/internal/storage"
	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/artifact"
	"github.com/paper-pigeon/backend/pkg/graph"
	"github.com/paper-pigeon/backend/pkg/kb"
	"github.com/paper-pigeon/backend/pkg/kb/bedrock"
	"github.com/paper-pigeon/backend/pkg/leaselock"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/store"
	"github.com/paper-pigeon/backend/pkg/store/cache"
	"github.com/paper-pigeon/backend/pkg/store/dynamo"
	"github.com/paper-pigeon/backend/pkg/store/memstore"
)

const (
	defaultCachePath   = "cache/" + artifact.DefaultName
	defaultFixturePath = "fixtures/store.json"
)

type Components struct {
	AWS aws.Config

	// Source is the uncached store. Reader is the process-lifetime
	// read-through cache over it that the server's Rebuilder reads.
	Source    store.Reader
	Reader    store.Reader
	Artifact  artifact.Store
	Rebuilder *rebuild.Rebuilder
	Graph     *graphcache.Holder
	Lease     leaselock.Locker
	LeaseKey  string

	Storage *storage.Client
	KB      kb.KnowledgeBase

	pool *pgxpool.Pool
}

func (c *Components) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// Setup builds every component. Nothing here contacts AWS; the Postgres pool
// is only opened when DATABASE_URL is set.
func Setup(ctx context.Context) (*Components, error) {
	awsCfg, err := storage.NewAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	c := &Components{
		AWS:     awsCfg,
		Storage: storage.NewS3Client(awsCfg),
		KB:      bedrock.NewFromConfig(awsCfg, bedrock.ConfigFromEnv(awsCfg.Region)),
	}

	c.Source, err = NewReader(awsCfg)
	if err != nil {
		return nil, err
	}
	c.Reader = cache.New(c.Source)

	c.Artifact, err = NewArtifactStore(c.Storage)
	if err != nil {
		return nil, err
	}
	c.Rebuilder = c.rebuilderOver(c.Reader)

	c.LeaseKey = "graph_rebuild:" + c.Artifact.Location()
	c.Lease, c.pool, err = NewLease(ctx)
	if err != nil {
		return nil, err
	}

	c.Graph = graphcache.New(c.Rebuilder, graphcache.Options{
		Lease:    c.Lease,
		LeaseKey: c.LeaseKey,
		Timeout:  util.GetEnvDuration("REBUILD_TIMEOUT", graphcache.DefaultRebuildTimeout),
	})

	logger.Info("[Bootstrap] Components ready",
		"store", util.GetEnvString("STORE_ADAPTER", "dynamo"),
		"artifact", c.Artifact.Location(),
		"writable", c.Artifact.Writable(),
		"region", awsCfg.Region,
	)
	return c, nil
}

// FreshRebuilder returns a Rebuilder over a new read-through cache, so the
// build sees the store as it is now. Long-running processes that rebuild
// repeatedly (the worker) take one per rebuild.
func (c *Components) FreshRebuilder() *rebuild.Rebuilder {
	return c.rebuilderOver(cache.New(c.Source))
}

func (c *Components) rebuilderOver(r store.Reader) *rebuild.Rebuilder {
	client := graph.NewGraphClient(graph.NewGraphClientParams{
		Reader:        r,
		ParallelReads: int(util.GetEnvNumeric("GRAPH_PARALLEL_READS", 8)),
	})

	policy := util.DefaultRetryPolicy()
	policy.MaxRetries = int(util.GetEnvNumeric("REBUILD_MAX_RETRIES", policy.MaxRetries))
	return rebuild.New(client, c.Artifact, policy)
}

// NewReader returns the source store selected by STORE_ADAPTER.
func NewReader(cfg aws.Config) (store.Reader, error) {
	switch adapter := util.GetEnvString("STORE_ADAPTER", "dynamo"); adapter {
	case "dynamo":
		client := dynamo.NewClient(cfg, util.GetEnv("DYNAMO_ENDPOINT"))
		return dynamo.NewReader(client, TablesFromEnv()), nil
	case "file":
		mem, err := memstore.Load(util.GetEnvString("STORE_FIXTURE_PATH", defaultFixturePath))
		if err != nil {
			return nil, err
		}
		return mem, nil
	default:
		return nil, fmt.Errorf("unknown STORE_ADAPTER %q", adapter)
	}
}

// TablesFromEnv reads DYNAMO_TABLE_* overrides. Unset names keep their defaults.
func TablesFromEnv() dynamo.Tables {
	return dynamo.Tables{
		Researchers:  util.GetEnv("DYNAMO_TABLE_RESEARCHERS"),
		PaperEdges:   util.GetEnv("DYNAMO_TABLE_PAPER_EDGES"),
		AdvisorEdges: util.GetEnv("DYNAMO_TABLE_ADVISOR_EDGES"),
		Library:      util.GetEnv("DYNAMO_TABLE_LIBRARY"),
		Papers:       util.GetEnv("DYNAMO_TABLE_PAPERS"),
		Descriptions: util.GetEnv("DYNAMO_TABLE_DESCRIPTIONS"),
		Metrics:      util.GetEnv("DYNAMO_TABLE_METRICS"),
		LabInfo:      util.GetEnv("DYNAMO_TABLE_LAB_INFO"),
	}
}

// NewArtifactStore returns the artifact store selected by ARTIFACT_BACKEND.
func NewArtifactStore(s3 *storage.Client) (artifact.Store, error) {
	readOnly := util.GetEnvBool("GRAPH_CACHE_READONLY", false)

	switch backend := util.GetEnvString("ARTIFACT_BACKEND", "file"); backend {
	case "file":
		return artifact.NewFileStore(
			util.GetEnvString("GRAPH_CACHE_PATH", defaultCachePath),
			artifact.FileStoreOptions{
				Fallbacks: util.GetEnvList("GRAPH_CACHE_FALLBACK_PATHS"),
				ReadOnly:  readOnly,
			},
		), nil
	case "s3":
		bucket := util.FirstEnv("GRAPH_CACHE_S3_BUCKET", "S3_BUCKET_NAME", "VITE_S3_BUCKET_NAME")
		if bucket == "" {
			return nil, fmt.Errorf("ARTIFACT_BACKEND=s3 requires GRAPH_CACHE_S3_BUCKET or S3_BUCKET_NAME")
		}
		key := util.FirstEnv("GRAPH_CACHE_S3_KEY", "CACHE_KEY")
		return artifact.NewS3Store(s3.S3, bucket, key, readOnly), nil
	default:
		return nil, fmt.Errorf("unknown ARTIFACT_BACKEND %q", backend)
	}
}

// NewLease returns a Postgres lease when DATABASE_URL is set, so rebuilds are
// exclusive across the server, the worker and the CLI. Otherwise rebuilds are
// only exclusive within this process.
func NewLease(ctx context.Context) (leaselock.Locker, *pgxpool.Pool, error) {
	dsn := util.GetEnv("DATABASE_URL")
	if dsn == "" {
		return leaselock.NewLocal(), nil, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	host, _ := os.Hostname()
	client := leaselock.New(pool, leaselock.Options{
		TTL:         util.GetEnvDuration("REBUILD_LEASE_TTL", 0),
		TokenPrefix: host + "-",
	})
	if err := client.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to create lease table: %w", err)
	}
	return client, pool, nil
}
