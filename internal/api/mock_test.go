package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/crm"
	"github.com/sells-group/lead-intel/internal/enrich"
	"github.com/sells-group/lead-intel/internal/lifecycle"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/queue"
	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
	"github.com/sells-group/lead-intel/internal/webhook"
	"github.com/sells-group/lead-intel/internal/xref"
	"github.com/sells-group/lead-intel/pkg/contactapi"
)

// fakeProvider answers lookups from a map; unknown documents have no data.
type fakeProvider struct {
	mu       sync.Mutex
	contacts map[string]contactapi.Contact
}

func (f *fakeProvider) Lookup(_ context.Context, document string) (*contactapi.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[document]
	if !ok {
		return nil, contactapi.ErrNoData
	}
	return &c, nil
}

type harness struct {
	t        *testing.T
	store    *store.SQLiteStore
	provider *fakeProvider
	srv      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	locks := ownerlock.New(time.Second)
	scorer := scoring.New(scoring.DefaultConfig())
	mgr := lifecycle.New(st, crm.NewLocalDirectory(st), scorer, locks)

	cfg := enrich.DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	provider := &fakeProvider{contacts: make(map[string]contactapi.Contact)}

	srv := NewServer(Deps{
		Store:     st,
		Lifecycle: mgr,
		Queue:     queue.New(st, scorer, locks),
		Enricher:  enrich.New(st, provider, locks, cfg),
		Matcher:   xref.NewMatcher(st, st, mgr, st),
		Webhooks:  webhook.NewService(st),
	}, Options{PageSize: 10})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{t: t, store: st, provider: provider, srv: ts}
}

func docFor(n int) string { return fmt.Sprintf("%014d", n) }

func (h *harness) seedOwner(n int) int64 {
	h.t.Helper()
	o := &model.Owner{
		Type:      model.OwnerTypePJ,
		Document:  docFor(n),
		LegalName: fmt.Sprintf("Armazem %d", n),
	}
	_, err := h.store.UpsertOwner(context.Background(), o)
	require.NoError(h.t, err)
	return o.ID
}

// seedInstrument attaches one instrument to ownerID and returns its id.
func (h *harness) seedInstrument(ownerID int64, number string) int64 {
	h.t.Helper()
	ctx := context.Background()
	loc := &model.Location{OwnerID: ownerID, Key: "main"}
	require.NoError(h.t, h.store.UpsertLocation(ctx, loc))
	_, err := h.store.UpsertInstruments(ctx, []model.Instrument{{
		InmetroNumber: number,
		OwnerID:       ownerID,
		LocationID:    loc.ID,
		CurrentStatus: model.InstrumentApproved,
	}})
	require.NoError(h.t, err)
	ids, err := h.store.InstrumentIDs(ctx, []string{number})
	require.NoError(h.t, err)
	return ids[number]
}

// do sends a request with an optional JSON body and decodes the response
// into out when out is non-nil.
func (h *harness) do(method, path string, body any, out any) int {
	h.t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close() //nolint:errcheck
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// apiError decodes the error envelope.
type apiError struct {
	Error struct {
		Kind    string     `json:"kind"`
		Code    string     `json:"code"`
		Message string     `json:"message"`
		Details []fieldErr `json:"details"`
	} `json:"error"`
}
