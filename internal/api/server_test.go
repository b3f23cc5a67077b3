package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/enrich"
	"github.com/sells-group/lead-intel/internal/lifecycle"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/queue"
	"github.com/sells-group/lead-intel/internal/xref"
	"github.com/sells-group/lead-intel/pkg/contactapi"
)

func TestHealth(t *testing.T) {
	h := newHarness(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, h.do("GET", "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListLeads_Pagination(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 3; i++ {
		h.seedOwner(i)
	}

	var p page[model.Owner]
	require.Equal(t, http.StatusOK, h.do("GET", "/leads?page_size=2", nil, &p))
	assert.Equal(t, 3, p.Total)
	assert.Len(t, p.Data, 2)
	assert.Equal(t, 1, p.Page)

	p = page[model.Owner]{}
	require.Equal(t, http.StatusOK, h.do("GET", "/leads?page_size=2&page=2", nil, &p))
	assert.Len(t, p.Data, 1)
	assert.Equal(t, 2, p.Page)
}

func TestListLeads_BadFilters(t *testing.T) {
	h := newHarness(t)
	tests := []string{
		"/leads?priority=whenever",
		"/leads?lead_status=maybe",
		"/leads?type=XX",
		"/leads?page=abc",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			var e apiError
			assert.Equal(t, http.StatusBadRequest, h.do("GET", path, nil, &e))
			assert.Equal(t, "invalid_input", e.Error.Code)
		})
	}
}

func TestGetLead(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)
	h.seedInstrument(id, "INM-1")

	var d struct {
		ID          int64              `json:"id"`
		Instruments []model.Instrument `json:"instruments"`
	}
	require.Equal(t, http.StatusOK, h.do("GET", fmt.Sprintf("/leads/%d", id), nil, &d))
	assert.Equal(t, id, d.ID)
	assert.Len(t, d.Instruments, 1)

	var e apiError
	assert.Equal(t, http.StatusNotFound, h.do("GET", "/leads/999", nil, &e))
	assert.Equal(t, "not_found", e.Error.Kind)

	e = apiError{}
	assert.Equal(t, http.StatusBadRequest, h.do("GET", "/leads/abc", nil, &e))
	assert.Equal(t, "invalid_input", e.Error.Code)
}

func TestUpdateLeadStatus(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)
	path := fmt.Sprintf("/leads/%d/status", id)

	var o model.Owner
	require.Equal(t, http.StatusOK, h.do("PATCH", path, map[string]any{"lead_status": "contacted", "notes": "first call"}, &o))
	assert.Equal(t, model.LeadStatusContacted, o.LeadStatus)

	var e apiError
	assert.Equal(t, http.StatusConflict, h.do("PATCH", path, map[string]any{"lead_status": "new"}, &e))
	assert.Equal(t, "invalid_transition", e.Error.Code)
}

func TestUpdateLeadStatus_RequestValidation(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)
	path := fmt.Sprintf("/leads/%d/status", id)

	var e apiError
	require.Equal(t, http.StatusBadRequest, h.do("PATCH", path, map[string]any{"lead_status": "bogus"}, &e))
	require.Len(t, e.Error.Details, 1)
	assert.Equal(t, "lead_status", e.Error.Details[0].Field)

	e = apiError{}
	assert.Equal(t, http.StatusBadRequest, h.do("PATCH", path, map[string]any{"lead_status": "contacted", "extra": 1}, &e))
	assert.Contains(t, e.Error.Message, "extra")

	e = apiError{}
	assert.Equal(t, http.StatusBadRequest, h.do("PATCH", path, "{not json", &e))
}

func TestConvertLead(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)
	path := fmt.Sprintf("/leads/%d/convert", id)

	var conv lifecycle.Conversion
	require.Equal(t, http.StatusOK, h.do("POST", path, nil, &conv))
	assert.Equal(t, id, conv.OwnerID)
	assert.NotZero(t, conv.CustomerID)

	var e apiError
	assert.Equal(t, http.StatusConflict, h.do("POST", path, map[string]any{"notes": "again"}, &e))
	assert.Equal(t, "already_converted", e.Error.Code)
}

func TestDeleteLead_ConflictUnlessForced(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)
	require.Equal(t, http.StatusOK, h.do("POST", fmt.Sprintf("/leads/%d/convert", id), nil, nil))

	path := fmt.Sprintf("/leads/%d", id)
	var e apiError
	assert.Equal(t, http.StatusConflict, h.do("DELETE", path, nil, &e))
	assert.Equal(t, "conversion_conflict", e.Error.Code)

	assert.Equal(t, http.StatusNoContent, h.do("DELETE", path+"?force=true", nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do("GET", path, nil, &e))
}

func TestLeadStats(t *testing.T) {
	h := newHarness(t)
	h.seedOwner(1)
	h.seedOwner(2)

	var st model.LeadStats
	require.Equal(t, http.StatusOK, h.do("GET", "/leads/stats", nil, &st))
	assert.Equal(t, 2, st.Total)
}

func TestEnrichLead(t *testing.T) {
	h := newHarness(t)
	withData := h.seedOwner(1)
	withoutData := h.seedOwner(2)
	h.provider.contacts[docFor(1)] = contactapi.Contact{Phone: "6499990000", Source: "fake"}

	var resp enrichResponse
	require.Equal(t, http.StatusOK, h.do("POST", fmt.Sprintf("/leads/%d/enrich", withData), nil, &resp))
	assert.Equal(t, enrich.Stats{Enriched: 1}, resp.Stats)

	resp = enrichResponse{}
	require.Equal(t, http.StatusOK, h.do("POST", fmt.Sprintf("/leads/%d/enrich", withData), nil, &resp))
	assert.Equal(t, enrich.Stats{Skipped: 1}, resp.Stats, "fresh contact data is not re-fetched")

	resp = enrichResponse{}
	require.Equal(t, http.StatusOK, h.do("POST", fmt.Sprintf("/leads/%d/enrich", withoutData), nil, &resp))
	assert.Equal(t, enrich.Stats{Failed: 1}, resp.Stats)

	var e apiError
	assert.Equal(t, http.StatusNotFound, h.do("POST", "/leads/999/enrich", nil, &e))
}

func TestEnrichBatch(t *testing.T) {
	h := newHarness(t)
	a := h.seedOwner(1)
	b := h.seedOwner(2)
	h.provider.contacts[docFor(1)] = contactapi.Contact{Email: "a@example.com"}

	var resp enrichResponse
	require.Equal(t, http.StatusOK, h.do("POST", "/leads/enrich-batch", []int64{a, b}, &resp))
	assert.Equal(t, 1, resp.Stats.Enriched)
	assert.Equal(t, 1, resp.Stats.Failed)
	assert.NotEmpty(t, resp.JobID)

	resp = enrichResponse{}
	require.Equal(t, http.StatusOK, h.do("POST", "/leads/enrich-batch", map[string]any{"ids": []int64{a}, "force": true}, &resp))
	assert.Equal(t, 1, resp.Stats.Enriched)

	var e apiError
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/leads/enrich-batch", []int64{}, &e))
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/leads/enrich-batch", map[string]any{"ids": []int64{0}}, &e))
}

func TestQueueFlow(t *testing.T) {
	h := newHarness(t)
	h.seedOwner(1)
	h.seedOwner(2)

	var res queue.Result
	require.Equal(t, http.StatusOK, h.do("POST", "/prospection/queue/generate", map[string]any{"date": "2026-05-04"}, &res))
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Items, 2)

	// Generating again adds nothing.
	res = queue.Result{}
	require.Equal(t, http.StatusOK, h.do("POST", "/prospection/queue/generate", map[string]any{"date": "2026-05-04"}, &res))
	assert.Equal(t, 0, res.Created)
	assert.Len(t, res.Items, 2)

	var list struct {
		Date  string                   `json:"date"`
		Items []model.ContactQueueItem `json:"items"`
	}
	require.Equal(t, http.StatusOK, h.do("GET", "/prospection/queue?date=2026-05-04", nil, &list))
	require.Len(t, list.Items, 2)

	itemPath := fmt.Sprintf("/prospection/queue/%d", list.Items[0].ID)
	var item model.ContactQueueItem
	require.Equal(t, http.StatusOK, h.do("PATCH", itemPath, map[string]any{"status": "contacted"}, &item))
	assert.Equal(t, model.QueueStatusContacted, item.Status)

	var e apiError
	assert.Equal(t, http.StatusConflict, h.do("PATCH", itemPath, map[string]any{"status": "skipped"}, &e))
	assert.Equal(t, "queue_item_closed", e.Error.Code)

	assert.Equal(t, http.StatusBadRequest, h.do("PATCH", itemPath, map[string]any{"status": "pending"}, &e))

	var job model.Job
	require.Equal(t, http.StatusOK, h.do("GET", "/jobs/"+res.JobID, nil, &job))
	assert.Equal(t, model.JobQueueGenerate, job.Kind)
	assert.Equal(t, http.StatusNotFound, h.do("GET", "/jobs/nope", nil, &e))
}

func TestQueue_BadDate(t *testing.T) {
	h := newHarness(t)
	var e apiError
	assert.Equal(t, http.StatusUnprocessableEntity, h.do("GET", "/prospection/queue?date=05/04/2026", nil, &e))
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/prospection/queue/generate", map[string]any{"date": "tomorrow"}, &e))
}

func TestCreateInteraction(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)

	var in model.Interaction
	require.Equal(t, http.StatusCreated, h.do("POST", "/prospection/interactions", map[string]any{
		"owner_id":            id,
		"channel":             "phone",
		"result":              "callback",
		"scheduled_follow_up": "2026-06-01",
	}, &in))
	assert.NotZero(t, in.ID)
	require.NotNil(t, in.ScheduledFollowUp)
	assert.Equal(t, "2026-06-01", in.ScheduledFollowUp.Format(model.DateLayout))
	assert.True(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC).Equal(*in.ScheduledFollowUp), "date-only follow-ups are anchored at noon UTC")

	var e apiError
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/prospection/interactions", map[string]any{"channel": "phone", "result": "callback"}, &e))
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/prospection/interactions", map[string]any{
		"owner_id": id, "channel": "phone", "result": "callback", "scheduled_follow_up": "soon",
	}, &e))
	assert.Equal(t, http.StatusNotFound, h.do("POST", "/prospection/interactions", map[string]any{
		"owner_id": 999, "channel": "email", "result": "no_answer",
	}, &e))
}

func TestUpdateInstrument(t *testing.T) {
	h := newHarness(t)
	owner := h.seedOwner(1)
	inst := h.seedInstrument(owner, "INM-9")
	path := fmt.Sprintf("/instruments/%d", inst)

	var resp instrumentResponse
	require.Equal(t, http.StatusOK, h.do("PATCH", path, map[string]any{
		"status":     "rejected",
		"event_date": "2026-03-01",
	}, &resp))
	require.NotNil(t, resp.Instrument)
	assert.Equal(t, model.InstrumentRejected, resp.Instrument.CurrentStatus)
	assert.Equal(t, owner, resp.Priority.OwnerID)

	var e apiError
	assert.Equal(t, http.StatusUnprocessableEntity, h.do("PATCH", path, map[string]any{}, &e))
	assert.Equal(t, http.StatusBadRequest, h.do("PATCH", path, map[string]any{"next_verification_at": "march"}, &e))
	assert.Equal(t, http.StatusBadRequest, h.do("PATCH", path, map[string]any{"status": "broken"}, &e))
	assert.Equal(t, http.StatusNotFound, h.do("PATCH", "/instruments/999", map[string]any{"status": "approved"}, &e))
}

func TestCrossReference(t *testing.T) {
	h := newHarness(t)
	id := h.seedOwner(1)
	h.seedOwner(2)
	require.NoError(t, h.store.CreateCustomer(t.Context(), &model.Customer{Name: "Cooperativa Alfa", Document: docFor(1)}))

	var m xref.Match
	require.Equal(t, http.StatusOK, h.do("GET", fmt.Sprintf("/leads/%d/matches", id), nil, &m))
	require.NotNil(t, m.CustomerID)
	assert.Equal(t, xref.MethodDocument, m.Method)

	var st xref.Stats
	require.Equal(t, http.StatusOK, h.do("POST", "/leads/cross-reference", nil, &st))
	assert.Equal(t, 2, st.TotalOwners)
	assert.Equal(t, 1, st.Linked)
	assert.Equal(t, 1, st.AutoConverted)
}

func TestWebhooksCRUD(t *testing.T) {
	h := newHarness(t)

	var hook model.WebhookConfig
	require.Equal(t, http.StatusCreated, h.do("POST", "/webhooks", map[string]any{
		"event_type": "lead.converted",
		"url":        "https://hooks.example.com/leads",
		"secret":     "0123456789abcdef",
	}, &hook))
	assert.True(t, hook.IsActive)
	assert.True(t, hook.HasSecret)
	path := fmt.Sprintf("/webhooks/%d", hook.ID)

	var list struct {
		Data []model.WebhookConfig `json:"data"`
	}
	require.Equal(t, http.StatusOK, h.do("GET", "/webhooks?event_type=lead.converted", nil, &list))
	assert.Len(t, list.Data, 1)

	active := false
	require.Equal(t, http.StatusOK, h.do("PATCH", path, map[string]any{"is_active": active}, &hook))
	assert.False(t, hook.IsActive)

	var deliveries struct {
		Data []model.WebhookDelivery `json:"data"`
	}
	require.Equal(t, http.StatusOK, h.do("GET", path+"/deliveries", nil, &deliveries))
	assert.Empty(t, deliveries.Data)

	assert.Equal(t, http.StatusNoContent, h.do("DELETE", path, nil, nil))
	var e apiError
	assert.Equal(t, http.StatusNotFound, h.do("GET", path, nil, &e))
}

func TestWebhooks_Validation(t *testing.T) {
	h := newHarness(t)
	var e apiError

	assert.Equal(t, http.StatusUnprocessableEntity, h.do("POST", "/webhooks", map[string]any{
		"event_type": "lead.exploded",
		"url":        "https://hooks.example.com",
		"secret":     "0123456789abcdef",
	}, &e))
	assert.Equal(t, "invalid_webhook", e.Error.Code)

	e = apiError{}
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/webhooks", map[string]any{
		"event_type": "lead.converted",
		"url":        "not a url",
		"secret":     "0123456789abcdef",
	}, &e))

	assert.Equal(t, http.StatusUnprocessableEntity, h.do("GET", "/webhooks?event_type=nope", nil, &e))
}
