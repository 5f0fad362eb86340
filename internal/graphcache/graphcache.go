// Package graphcache serves the current graph from memory and swaps in a new
// one after a successful rebuild or reload.
package graphcache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paper-pigeon/backend/internal/rebuild"
	"github.com/paper-pigeon/backend/pkg/artifact"
	"github.com/paper-pigeon/backend/pkg/common"
	"github.com/paper-pigeon/backend/pkg/leaselock"
	"github.com/paper-pigeon/backend/pkg/logger"
	"github.com/paper-pigeon/backend/pkg/telemetry"
)

// ErrRebuildUnsupported is returned by Rebuild when the artifact store cannot
// be written in this deployment.
var ErrRebuildUnsupported = errors.New("graph rebuild is not supported in this deployment")

const DefaultRebuildTimeout = 10 * time.Minute

// Rebuilder is implemented by *rebuild.Rebuilder.
type Rebuilder interface {
	RebuildAndPersist(ctx context.Context) (*rebuild.Result, error)
	Store() artifact.Store
}

// Snapshot is an immutable graph together with its serialized form.
type Snapshot struct {
	Graph    common.Graph
	JSON     []byte
	Source   string
	LoadedAt time.Time
}

func (s *Snapshot) Nodes() int { return len(s.Graph.Nodes) }
func (s *Snapshot) Links() int { return len(s.Graph.Links) }

type Options struct {
	// Lease guards the rebuild across processes. Nil runs without one.
	Lease    leaselock.Locker
	LeaseKey string
	Timeout  time.Duration
}

type Holder struct {
	rebuilder Rebuilder
	store     artifact.Store

	lease    leaselock.Locker
	leaseKey string
	timeout  time.Duration

	current atomic.Pointer[Snapshot]
	flight  singleflight.Group
}

func New(rebuilder Rebuilder, opts Options) *Holder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRebuildTimeout
	}
	store := rebuilder.Store()
	if opts.LeaseKey == "" {
		opts.LeaseKey = "graph_rebuild:" + store.Location()
	}

	h := &Holder{
		rebuilder: rebuilder,
		store:     store,
		lease:     opts.Lease,
		leaseKey:  opts.LeaseKey,
		timeout:   opts.Timeout,
	}

	empty, _ := artifact.Encode(common.EmptyGraph())
	h.current.Store(&Snapshot{Graph: common.EmptyGraph(), JSON: empty, Source: "empty", LoadedAt: time.Now()})
	return h
}

// Get returns the snapshot being served. It never touches the store.
func (h *Holder) Get() *Snapshot {
	return h.current.Load()
}

func (h *Holder) JSON() []byte {
	return h.current.Load().JSON
}

func (h *Holder) Writable() bool {
	return h.store.Writable()
}

// Load reads the artifact into memory at startup. A missing artifact leaves
// the empty graph in place and is not an error.
func (h *Holder) Load(ctx context.Context) error {
	_, err := h.Reload(ctx)
	if errors.Is(err, common.ErrArtifactMissing) {
		logger.Info("[GraphCache] No graph cache found, serving empty graph", "location", h.store.Location())
		return nil
	}
	return err
}

// Reload re-reads the artifact, which another process may have replaced, and
// swaps it in. The artifact bytes are served as stored once they decode. On
// error the current snapshot is kept.
func (h *Holder) Reload(ctx context.Context) (*Snapshot, error) {
	data, err := h.store.Load(ctx)
	if err != nil {
		return h.Get(), err
	}

	g, err := artifact.Decode(data)
	if err != nil {
		logger.Error("[GraphCache] Failed to decode graph cache", "location", h.store.Location(), "err", err)
		return h.Get(), err
	}
	snap := &Snapshot{Graph: g, JSON: data, Source: h.store.Location(), LoadedAt: time.Now()}
	h.swap(snap)
	return snap, nil
}

// Rebuild recomputes and persists the graph, then serves it. Concurrent calls
// share one in-flight rebuild. The rebuild is not cancelled when ctx is; ctx
// only bounds how long this caller waits for it.
func (h *Holder) Rebuild(ctx context.Context) (*rebuild.Result, error) {
	if !h.store.Writable() {
		return nil, ErrRebuildUnsupported
	}

	ch := h.flight.DoChan("rebuild", func() (any, error) {
		return h.rebuild(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.Debug("[GraphCache] Joined in-flight rebuild")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rebuild.Result), nil
	}
}

func (h *Holder) rebuild(ctx context.Context) (*rebuild.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var result *rebuild.Result
	run := func(ctx context.Context) error {
		res, err := h.rebuilder.RebuildAndPersist(ctx)
		if err != nil {
			return err
		}
		h.swap(&Snapshot{Graph: res.Graph, JSON: res.JSON, Source: h.store.Location(), LoadedAt: time.Now()})
		result = res
		return nil
	}

	var err error
	if h.lease != nil {
		err = h.lease.WithLease(ctx, h.leaseKey, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if errors.Is(err, leaselock.ErrBusy) {
			logger.Warn("[GraphCache] Rebuild already running elsewhere", "lease", h.leaseKey)
		}
		return nil, err
	}
	return result, nil
}

func (h *Holder) swap(s *Snapshot) {
	h.current.Store(s)
	telemetry.GraphNodes.Set(float64(s.Nodes()))
	telemetry.GraphLinks.Set(float64(s.Links()))
	logger.Info("[GraphCache] Serving graph", "source", s.Source, "nodes", s.Nodes(), "links", s.Links())
}
