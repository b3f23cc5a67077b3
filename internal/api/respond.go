package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/apperr"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
	Details []fieldErr  `json:"details,omitempty"`
}

type fieldErr struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

// statusFor maps an error kind onto an HTTP status. Domain validation
// failures are 422; malformed requests are rejected with 400 before reaching
// the domain.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.log.Error("api: internal error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Kind:    apperr.KindInternal,
			Code:    "internal",
			Message: "internal error",
		}})
		return
	}
	status := statusFor(ae.Kind)
	if status >= 500 {
		s.log.Warn("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: ae.Kind, Code: ae.Code, Message: ae.Message}})
}

// badRequest reports a malformed or invalid request body or parameter.
func badRequest(w http.ResponseWriter, msg string, details ...fieldErr) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Kind:    apperr.KindValidation,
		Code:    apperr.CodeInvalidInput,
		Message: msg,
		Details: details,
	}})
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and returns false on failure. An empty body is accepted
// when allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			badRequest(w, "invalid request body: "+err.Error())
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]fieldErr, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fieldErr{Field: fe.Field(), Message: ruleMessage(fe)})
			}
			badRequest(w, "request validation failed", details...)
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url", "http_url":
		return "must be a valid URL"
	case "datetime":
		return "must match layout " + fe.Param()
	case "dive":
		return "invalid element"
	default:
		return "is invalid"
	}
}

// pathID parses the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid id "+strconv.Quote(chi.URLParam(r, "id")))
		return 0, false
	}
	return id, true
}

// queryInt parses an optional positive integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(w, "invalid "+name+" "+strconv.Quote(v))
		return 0, false
	}
	return n, true
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
