package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

type fakeDB struct {
	mu      sync.Mutex
	holders map[string]string
	renews  int
	execs   []string
}

func newFakeDB() *fakeDB { return &fakeDB{holders: map[string]string{}} }

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if sql == releaseSQL {
		key, token := args[0].(string), args[1].(string)
		if f.holders[key] == token {
			delete(f.holders, key)
			return pgconn.NewCommandTag("DELETE 1"), nil
		}
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	switch sql {
	case tryAcquireSQL:
		if holder, ok := f.holders[key]; ok && holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return fakeRow{key: key}
	case renewSQL:
		f.renews++
		if f.holders[key] != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (f *fakeDB) steal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holders[key] = "someone-else"
}

func (f *fakeDB) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holders[key]
	return h, ok
}

func TestClient_WithLeaseReleases(t *testing.T) {
	db := newFakeDB()
	c := newClient(db, Options{TokenPrefix: "api-"})

	ran := false
	err := c.WithLease(context.Background(), "graph_rebuild", func(ctx context.Context) error {
		ran = true
		holder, ok := db.holder("graph_rebuild")
		require.True(t, ok)
		require.Contains(t, holder, "api-")
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	_, ok := db.holder("graph_rebuild")
	require.False(t, ok, "lease row deleted on release")
}

func TestClient_BusyWithoutWait(t *testing.T) {
	db := newFakeDB()
	db.steal("graph_rebuild")
	c := newClient(db, Options{})

	err := c.WithLease(context.Background(), "graph_rebuild", func(ctx context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrBusy)

	holder, _ := db.holder("graph_rebuild")
	require.Equal(t, "someone-else", holder)
}

func TestClient_WaitHonoursContext(t *testing.T) {
	db := newFakeDB()
	db.steal("graph_rebuild")
	c := newClient(db, Options{Wait: true, WaitInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Acquire(ctx, "graph_rebuild")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_LostLeaseCancelsWork(t *testing.T) {
	db := newFakeDB()
	c := newClient(db, Options{})
	c.opts.RenewEvery = 2 * time.Millisecond

	err := c.WithLease(context.Background(), "graph_rebuild", func(ctx context.Context) error {
		db.steal("graph_rebuild")
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, ErrLost)
	require.ErrorIs(t, err, context.Canceled)

	holder, _ := db.holder("graph_rebuild")
	require.Equal(t, "someone-else", holder, "release never deletes a row owned by another holder")
}

func TestClient_EmptyKey(t *testing.T) {
	c := newClient(newFakeDB(), Options{})
	_, err := c.Acquire(context.Background(), "")
	require.Error(t, err)
}

func TestClient_EnsureSchema(t *testing.T) {
	db := newFakeDB()
	c := newClient(db, Options{})
	require.NoError(t, c.EnsureSchema(context.Background()))
	require.Equal(t, []string{createTableSQL}, db.execs)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	require.Equal(t, 5*time.Minute, o.TTL)
	require.Equal(t, 150*time.Second, o.RenewEvery)
	require.Equal(t, 250*time.Millisecond, o.WaitInterval)

	o = Options{TTL: time.Second, RenewEvery: 5 * time.Second}.withDefaults()
	require.Equal(t, time.Second, o.RenewEvery)
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	err := l.WithLease(ctx, "graph_rebuild", func(ctx context.Context) error {
		inner := l.WithLease(ctx, "graph_rebuild", func(context.Context) error { return nil })
		require.ErrorIs(t, inner, ErrBusy)

		other := l.WithLease(ctx, "other", func(context.Context) error { return nil })
		require.NoError(t, other)
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	require.ErrorIs(t, l.WithLease(ctx, "graph_rebuild", func(context.Context) error { return boom }), boom)
	require.NoError(t, l.WithLease(ctx, "graph_rebuild", func(context.Context) error { return nil }))
}
