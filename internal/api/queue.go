package api

import (
	"net/http"
	"time"

	"github.com/sells-group/lead-intel/internal/model"
)

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.deps.Queue.Today()
	}
	items, err := s.deps.Queue.List(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.ContactQueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "items": items})
}

type generateRequest struct {
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Limit *int   `json:"limit" validate:"omitempty,gte=0,lte=10000"`
}

func (s *Server) generateQueue(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req, true) {
		return
	}
	if req.Date == "" {
		req.Date = s.deps.Queue.Today()
	}
	limit := s.opts.DailyCapacity
	if req.Limit != nil {
		limit = *req.Limit
	}
	res, err := s.deps.Queue.Generate(r.Context(), req.Date, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type queueItemRequest struct {
	Status model.QueueStatus `json:"status" validate:"required,oneof=contacted skipped"`
}

func (s *Server) updateQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req queueItemRequest
	if !decode(w, r, &req, false) {
		return
	}
	item, err := s.deps.Queue.MarkItem(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type interactionRequest struct {
	OwnerID           int64                   `json:"owner_id" validate:"required,gt=0"`
	Channel           model.Channel           `json:"channel" validate:"required,oneof=phone whatsapp email visit"`
	Result            model.InteractionResult `json:"result" validate:"required,oneof=interested not_interested no_answer callback converted"`
	Notes             string                  `json:"notes" validate:"max=2000"`
	ScheduledFollowUp string                  `json:"scheduled_follow_up"`
}

func (s *Server) createInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if !decode(w, r, &req, false) {
		return
	}
	followUp, err := parseFollowUp(req.ScheduledFollowUp)
	if err != nil {
		badRequest(w, "request validation failed", fieldErr{Field: "scheduled_follow_up", Message: err.Error()})
		return
	}
	in, err := s.deps.Lifecycle.RecordInteraction(r.Context(), model.Interaction{
		OwnerID:           req.OwnerID,
		Channel:           req.Channel,
		Result:            req.Result,
		Notes:             req.Notes,
		ScheduledFollowUp: followUp,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

// parseFollowUp accepts a calendar date, anchored with model.FollowUpDate, or
// an RFC 3339 timestamp.
func parseFollowUp(v string) (*time.Time, error) {
	if t, err := time.Parse(model.DateLayout, v); err == nil {
		t = model.FollowUpDate(t)
		return &t, nil
	}
	return parseTime(v)
}

// parseTime accepts a calendar date, kept as a UTC midnight, or an RFC 3339
// timestamp. Empty input yields nil.
func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(model.DateLayout, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errBadTime
	}
	t = t.UTC()
	return &t, nil
}
