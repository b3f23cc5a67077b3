package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/enrich"
	"github.com/sells-group/lead-intel/internal/lifecycle"
	"github.com/sells-group/lead-intel/internal/model"
)

// page is the envelope of paginated lists.
type page[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// leadDetail is one owner with its related records.
type leadDetail struct {
	*model.Owner
	Instruments   []model.Instrument   `json:"instruments"`
	StatusChanges []model.StatusChange `json:"status_changes"`
	Interactions  []model.Interaction  `json:"interactions"`
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.OwnerFilter{
		Priority:   model.Priority(q.Get("priority")),
		LeadStatus: model.LeadStatus(q.Get("lead_status")),
		City:       q.Get("city"),
		Type:       model.OwnerType(q.Get("type")),
		Search:     q.Get("search"),
	}
	switch {
	case filter.Priority != "" && !filter.Priority.Valid():
		badRequest(w, "unknown priority "+q.Get("priority"))
		return
	case filter.LeadStatus != "" && !filter.LeadStatus.Valid():
		badRequest(w, "unknown lead_status "+q.Get("lead_status"))
		return
	case filter.Type != "" && !filter.Type.Valid():
		badRequest(w, "unknown type "+q.Get("type"))
		return
	}

	pageNum, ok := queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size", s.opts.PageSize)
	if !ok {
		return
	}
	if pageNum < 1 {
		pageNum = 1
	}
	if size < 1 {
		size = s.opts.PageSize
	}
	filter.Limit = size
	filter.Offset = (pageNum - 1) * size

	owners, total, err := s.deps.Store.ListOwners(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if owners == nil {
		owners = []model.Owner{}
	}
	writeJSON(w, http.StatusOK, page[model.Owner]{Data: owners, Total: total, Page: pageNum, PageSize: size})
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	o, err := s.deps.Store.GetOwner(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d := leadDetail{Owner: o}
	if d.Instruments, err = s.deps.Store.ListInstruments(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if d.StatusChanges, err = s.deps.Store.ListStatusChanges(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if d.Interactions, err = s.deps.Store.ListInteractions(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	o.InstrumentsCount = len(d.Instruments)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) leadStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Lifecycle.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) leadMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.deps.Matcher.MatchOwner(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// enrichResponse wraps enrichment tallies as {stats:{...}}.
type enrichResponse struct {
	JobID string       `json:"job_id,omitempty"`
	Stats enrich.Stats `json:"stats"`
}

func (s *Server) enrichLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outcome, err := s.deps.Enricher.EnrichOne(r.Context(), id, queryBool(r, "force"))
	// Provider failures are reported as a failed tally, not an error.
	if err != nil && apperr.KindOf(err) != apperr.KindUpstream {
		s.writeError(w, r, err)
		return
	}
	var resp enrichResponse
	switch outcome {
	case enrich.Enriched:
		resp.Stats.Enriched = 1
	case enrich.Failed:
		resp.Stats.Failed = 1
	default:
		resp.Stats.Skipped = 1
	}
	writeJSON(w, http.StatusOK, resp)
}

// enrichBatchRequest accepts either a bare id array or {"ids": [...]}.
type enrichBatchRequest struct {
	IDs   []int64 `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
	Force bool    `json:"force"`
}

func (s *Server) enrichBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "invalid request body")
		return
	}
	var req enrichBatchRequest
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &req.IDs); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
		req.Force = queryBool(r, "force")
	} else {
		r.Body = io.NopCloser(bytes.NewReader(body))
		if !decode(w, r, &req, false) {
			return
		}
	}
	if err := validate.Struct(&req); err != nil {
		badRequest(w, "ids must be a non-empty array of positive owner ids")
		return
	}

	res, err := s.deps.Enricher.EnrichBatch(r.Context(), req.IDs, req.Force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrichResponse{JobID: res.JobID, Stats: res.Stats})
}

type convertRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (s *Server) convertLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req convertRequest
	if !decode(w, r, &req, true) {
		return
	}
	conv, err := s.deps.Lifecycle.Convert(r.Context(), id, model.ChangeSourceUser, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type statusRequest struct {
	LeadStatus model.LeadStatus        `json:"lead_status" validate:"required,oneof=new contacted negotiating converted lost"`
	Notes      string                  `json:"notes" validate:"max=2000"`
	Channel    model.Channel           `json:"channel" validate:"omitempty,oneof=phone whatsapp email visit"`
	Result     model.InteractionResult `json:"result" validate:"omitempty,oneof=interested not_interested no_answer callback converted"`
}

func (s *Server) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req, false) {
		return
	}
	o, err := s.deps.Lifecycle.UpdateStatus(r.Context(), id, lifecycle.StatusRequest{
		Status:  req.LeadStatus,
		Note:    req.Notes,
		Channel: req.Channel,
		Result:  req.Result,
		Source:  model.ChangeSourceUser,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) deleteLead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Lifecycle.Delete(r.Context(), id, queryBool(r, "force")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) crossReference(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Matcher.Run(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
