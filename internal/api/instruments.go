package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/scoring"
)

var errBadTime = errors.New("must be YYYY-MM-DD or an RFC 3339 timestamp")

type instrumentRequest struct {
	Status             *model.InstrumentStatus `json:"status" validate:"omitempty,oneof=approved rejected repaired unknown"`
	LastVerificationAt string                  `json:"last_verification_at"`
	NextVerificationAt string                  `json:"next_verification_at"`
	Executor           *string                 `json:"executor" validate:"omitempty,max=200"`
	CompetitorName     *string                 `json:"competitor_name" validate:"omitempty,max=200"`
	EventDate          string                  `json:"event_date"`
}

type instrumentResponse struct {
	Instrument *model.Instrument `json:"instrument"`
	Priority   scoring.Result    `json:"priority"`
}

func (s *Server) updateInstrument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req instrumentRequest
	if !decode(w, r, &req, false) {
		return
	}

	upd := model.InstrumentUpdate{
		Status:         req.Status,
		Executor:       req.Executor,
		CompetitorName: req.CompetitorName,
	}
	var (
		details []fieldErr
		err     error
	)
	if upd.LastVerificationAt, err = parseTime(req.LastVerificationAt); err != nil {
		details = append(details, fieldErr{Field: "last_verification_at", Message: err.Error()})
	}
	if upd.NextVerificationAt, err = parseTime(req.NextVerificationAt); err != nil {
		details = append(details, fieldErr{Field: "next_verification_at", Message: err.Error()})
	}
	if ev, err := parseTime(req.EventDate); err != nil {
		details = append(details, fieldErr{Field: "event_date", Message: err.Error()})
	} else if ev != nil {
		upd.EventDate = *ev
	}
	if len(details) > 0 {
		badRequest(w, "request validation failed", details...)
		return
	}

	inst, prio, err := s.deps.Lifecycle.UpdateInstrumentStatus(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instrumentResponse{Instrument: inst, Priority: prio})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
