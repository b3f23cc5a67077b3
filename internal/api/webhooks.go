package api

import (
	"net/http"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/webhook"
)

const maxDeliveries = 200

type webhookRequest struct {
	EventType string `json:"event_type" validate:"required"`
	URL       string `json:"url" validate:"required,http_url"`
	Secret    string `json:"secret"`
	IsActive  *bool  `json:"is_active"`
}

type webhookPatchRequest struct {
	EventType *string `json:"event_type" validate:"omitempty,min=1"`
	URL       *string `json:"url" validate:"omitempty,http_url"`
	Secret    *string `json:"secret" validate:"omitempty,min=1"`
	IsActive  *bool   `json:"is_active"`
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.deps.Webhooks.List(r.Context(), r.URL.Query().Get("event_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hooks == nil {
		hooks = []model.WebhookConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": hooks})
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if !decode(w, r, &req, false) {
		return
	}
	hook, err := s.deps.Webhooks.Create(r.Context(), webhook.CreateRequest{
		EventType: req.EventType,
		URL:       req.URL,
		Secret:    req.Secret,
		IsActive:  req.IsActive,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (s *Server) getWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	hook, err := s.deps.Webhooks.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req webhookPatchRequest
	if !decode(w, r, &req, false) {
		return
	}
	hook, err := s.deps.Webhooks.Update(r.Context(), id, model.WebhookPatch{
		EventType: req.EventType,
		URL:       req.URL,
		Secret:    req.Secret,
		IsActive:  req.IsActive,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Webhooks.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	if limit == 0 || limit > maxDeliveries {
		limit = maxDeliveries
	}
	ds, err := s.deps.Webhooks.Deliveries(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ds == nil {
		ds = []model.WebhookDelivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ds})
}
