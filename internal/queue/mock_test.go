package queue

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
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
)

const queueDate = "2024-06-01"

// day is queueDate as a UTC midnight.
var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// saoPaulo is the default queue zone, three hours behind UTC.
var saoPaulo = time.FixedZone("America/Sao_Paulo", -3*60*60)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newGenerator(st Store, pub events.Publisher, opts ...Option) *Generator {
	opts = append([]Option{WithPublisher(pub)}, opts...)
	return New(st, scoring.New(scoring.DefaultConfig()), ownerlock.New(time.Second), opts...)
}

// followUp logs a callback interaction for owner scheduled at at.
func followUp(t *testing.T, st *store.SQLiteStore, owner int64, at time.Time) {
	t.Helper()
	require.NoError(t, st.CreateInteraction(context.Background(), &model.Interaction{
		OwnerID: owner, Channel: model.ChannelPhone, Result: model.ResultCallback, ScheduledFollowUp: &at, CreatedAt: day.AddDate(0, 0, -1),
	}))
}

func ownerIDs(items []model.ContactQueueItem) []int64 {
	var ids []int64
	for _, it := range items {
		ids = append(ids, it.OwnerID)
	}
	return ids
}

// seedOwner creates an owner whose single instrument is due dueInDays after
// queueDate. A nil dueInDays leaves the instrument without expiry data.
func seedOwner(t *testing.T, st *store.SQLiteStore, n int, dueInDays *int) int64 {
	t.Helper()
	ctx := context.Background()
	o := &model.Owner{Type: model.OwnerTypePJ, LegalName: fmt.Sprintf("Granja %d", n), Document: fmt.Sprintf("%014d", n)}
	_, err := st.UpsertOwner(ctx, o)
	require.NoError(t, err)

	loc := &model.Location{OwnerID: o.ID, Key: "main", AddressCity: "Patos de Minas"}
	require.NoError(t, st.UpsertLocation(ctx, loc))

	inst := model.Instrument{LocationID: loc.ID, InmetroNumber: fmt.Sprintf("INM-%d", n), CurrentStatus: model.InstrumentApproved}
	if dueInDays != nil {
		due := day.AddDate(0, 0, *dueInDays)
		inst.NextVerificationAt = &due
	}
	_, err = st.UpsertInstruments(ctx, []model.Instrument{inst})
	require.NoError(t, err)
	return o.ID
}

func days(n int) *int { return &n }
