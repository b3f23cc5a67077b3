package enrich

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/store"
	"github.com/sells-group/lead-intel/pkg/contactapi"
)

// fakeProvider answers from a map. Documents in hang block until the call's
// context ends; gate, when set, is waited on before answering.
type fakeProvider struct {
	mu       sync.Mutex
	contacts map[string]contactapi.Contact
	hang     map[string]bool
	gate     chan struct{}
	calls    map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		contacts: make(map[string]contactapi.Contact),
		hang:     make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (f *fakeProvider) Lookup(ctx context.Context, document string) (*contactapi.Contact, error) {
	f.mu.Lock()
	f.calls[document]++
	hang := f.hang[document]
	c, ok := f.contacts[document]
	gate := f.gate
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, contactapi.ErrNoData
	}
	return &c, nil
}

func (f *fakeProvider) callCount(document string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[document]
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedOwner creates owner n with document docFor(n).
func seedOwner(t *testing.T, st *store.SQLiteStore, n int) int64 {
	t.Helper()
	o := &model.Owner{Type: model.OwnerTypePJ, LegalName: fmt.Sprintf("Cooperativa %d", n), Document: docFor(n)}
	_, err := st.UpsertOwner(context.Background(), o)
	require.NoError(t, err)
	return o.ID
}

func docFor(n int) string { return fmt.Sprintf("%014d", n) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}
