package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/crm"
	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
)

// recorder is an events.Publisher that keeps what it receives.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type failingDirectory struct{}

func (failingDirectory) EnsureCustomer(context.Context, *model.Owner) (*model.Customer, error) {
	return nil, errors.New("crm unreachable")
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	st  *store.SQLiteStore
	mgr *Manager
	pub *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	pub := &recorder{}
	mgr := New(st, crm.NewLocalDirectory(st), scoring.New(scoring.DefaultConfig()), ownerlock.New(5*time.Second),
		WithPublisher(pub),
		WithClock(func() time.Time { return fixedNow }),
	)
	return &harness{st: st, mgr: mgr, pub: pub}
}

// seed creates a PJ owner with one location and the given instruments.
func (h *harness) seed(t *testing.T, doc string, instruments ...model.Instrument) *model.Owner {
	t.Helper()
	ctx := context.Background()
	o := &model.Owner{Type: model.OwnerTypePJ, LegalName: "Fazenda " + doc, Document: doc}
	_, err := h.st.UpsertOwner(ctx, o)
	require.NoError(t, err)

	loc := &model.Location{OwnerID: o.ID, Key: "main", AddressCity: "Uberaba"}
	require.NoError(t, h.st.UpsertLocation(ctx, loc))
	for i := range instruments {
		instruments[i].LocationID = loc.ID
	}
	if len(instruments) > 0 {
		_, err = h.st.UpsertInstruments(ctx, instruments)
		require.NoError(t, err)
	}
	return o
}
