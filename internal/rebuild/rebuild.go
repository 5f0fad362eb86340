// Package rebuild recomputes the graph from the source store and persists it
// as the durable artifact.
package rebuild

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/paper-pigeon/backend/internal/timing"
	"github.com/paper-pigeon/backend/internal/util"
	"github.com/paper-pigeon/backend/pkg/artifact"
	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/telemetry"
)

// Builder assembles a complete graph. *graph.GraphClient implements it.
type Builder interface {
	BuildGraph(ctx context.Context) (common.Graph, error)
}

// Result describes a persisted rebuild. JSON holds the exact bytes written
// to the artifact.
type Result struct {
	RebuildID string
	Graph     common.Graph
	JSON      []byte
	Attempts  int

	BuildDuration time.Duration
	WriteDuration time.Duration
	TotalDuration time.Duration
}

func (r *Result) Nodes() int { return len(r.Graph.Nodes) }
func (r *Result) Links() int { return len(r.Graph.Links) }

type Rebuilder struct {
	builder Builder
	store   artifact.Store
	policy  util.RetryPolicy
}

func New(builder Builder, store artifact.Store, policy util.RetryPolicy) *Rebuilder {
	return &Rebuilder{builder: builder, store: store, policy: policy}
}

func (r *Rebuilder) Store() artifact.Store { return r.store }

// RebuildAndPersist builds the graph, retrying the whole build with backoff,
// and replaces the artifact with it. Build errors surface as
// common.KindBuildFailed once the retry budget is spent. Persist errors are
// not retried and surface as common.KindPersistFailed. On any error the
// artifact is left as it was.
func (r *Rebuilder) RebuildAndPersist(ctx context.Context) (*Result, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	sw := timing.NewStopwatch()

	logger.Info("[Rebuild] Starting graph rebuild", "rebuild_id", id, "artifact", r.store.Location())

	attempts := 0
	g, err := util.RetryWithBackoff(ctx, r.policy, func(ctx context.Context) (common.Graph, error) {
		attempts++
		telemetry.RebuildAttempts.Inc()
		return r.builder.BuildGraph(ctx)
	}, func(err error, wait time.Duration) {
		logger.Warn("[Rebuild] Build attempt failed", "rebuild_id", id, "attempt", attempts, "max_attempts", r.policy.MaxRetries+1, "retry_in", wait, "err", err)
	})
	sw.Lap("build")
	if err != nil {
		return nil, r.fail(id, sw, common.E(common.KindBuildFailed, "build graph", err), attempts)
	}

	logger.Info("[Rebuild] Graph built", "rebuild_id", id, "nodes", len(g.Nodes), "links", len(g.Links), "build_ms", timing.Millis(sw.Get("build")))

	data, err := artifact.Encode(g)
	if err != nil {
		return nil, r.fail(id, sw, common.E(common.KindPersistFailed, "encode graph", err), attempts)
	}
	if err := r.store.Save(ctx, data); err != nil {
		return nil, r.fail(id, sw, common.E(common.KindPersistFailed, "save artifact", err), attempts)
	}
	sw.Lap("write")

	res := &Result{
		RebuildID:     id,
		Graph:         g.Normalize(),
		JSON:          data,
		Attempts:      attempts,
		BuildDuration: sw.Get("build"),
		WriteDuration: sw.Get("write"),
		TotalDuration: sw.Total(),
	}

	telemetry.Rebuilds.WithLabelValues("success").Inc()
	telemetry.RebuildDuration.WithLabelValues("success").Observe(res.TotalDuration.Seconds())
	logger.Info("[Rebuild] Graph cache rebuilt",
		"rebuild_id", id,
		"nodes", res.Nodes(),
		"links", res.Links(),
		"attempts", attempts,
		"build_ms", timing.Millis(res.BuildDuration),
		"write_ms", timing.Millis(res.WriteDuration),
		"total_ms", timing.Millis(res.TotalDuration),
		"artifact", r.store.Location(),
	)

	return res, nil
}

func (r *Rebuilder) fail(id string, sw *timing.Stopwatch, err error, attempts int) error {
	result := "build_failed"
	if common.KindOf(err) == common.KindPersistFailed {
		result = "persist_failed"
	}

	total := sw.Total()
	telemetry.Rebuilds.WithLabelValues(result).Inc()
	telemetry.RebuildDuration.WithLabelValues(result).Observe(total.Seconds())
	logger.Error("[Rebuild] Graph cache rebuild failed",
		"rebuild_id", id,
		"result", result,
		"attempts", attempts,
		"total_ms", timing.Millis(total),
		"err", err,
	)
	return err
}
