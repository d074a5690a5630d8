package v1alpha1

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/uptend/dispatch/api/v1alpha1"
	"github.com/uptend/dispatch/internal/handlers/validator"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/pkg/requestid"
)

type ServiceHandler struct {
	dispatchSrv *service.DispatchService
	validator   *validator.Validator
}

func NewServiceHandler(dispatchService *service.DispatchService) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewDispatchValidationRules()...)

	return &ServiceHandler{
		dispatchSrv: dispatchService,
		validator:   v,
	}
}

// Routes mounts the dispatch API on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", h.CreateJob)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Get("/history", h.GetDispatchHistory)
			r.Get("/quick-match", h.QuickMatch)
			r.Post("/dispatch", h.DispatchJob)
			r.Post("/claim", h.ClaimJob)
			r.Post("/decline", h.DeclineOffer)
			r.Post("/en-route", h.MarkEnRoute)
			r.Post("/check-in", h.CheckIn)
			r.Post("/start", h.StartJob)
			r.Post("/complete", h.CompleteJob)
			r.Post("/delay", h.ReportDelay)
			r.Post("/cancel", h.CancelJob)
		})
		r.Get("/pros/{id}", h.GetPro)
		r.Put("/pros/{id}", h.UpsertPro)
	})
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, v1alpha1.Health{Status: "ok"})
}

// decode reads the JSON body into v and validates it. It writes the error response and returns false on failure.
func (h *ServiceHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	// an empty body decodes to the zero value and is left to validation
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, validator.NewErrInvalidRequest("invalid body: %v", err))
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

// jobID parses the {id} path parameter.
func (h *ServiceHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		h.fail(w, r, validator.NewErrInvalidRequest("invalid format for parameter id: %v", err))
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch err.(type) {
	case *validator.ErrInvalidRequest, *service.ErrManualReasonRequired:
		return http.StatusBadRequest
	case *service.ErrNotAssignedPro, *service.ErrNotOfferedPro:
		return http.StatusForbidden
	case *service.ErrResourceNotFound:
		return http.StatusNotFound
	case *service.ErrInvalidTransition, *service.ErrCheckInTooLate:
		return http.StatusConflict
	case *service.ErrCheckInOutOfRange:
		return http.StatusUnprocessableEntity
	case *service.ErrNoCandidatesAvailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ServiceHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := requestid.Logger(r.Context(), "dispatch_handler")

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorw("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	} else {
		logger.Debugw("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	var rid *string
	if id := requestid.FromContext(r.Context()); id != "" {
		rid = &id
	}

	render.Status(r, status)
	render.JSON(w, r, v1alpha1.Error{Message: message, RequestId: rid})
}

func isNoCandidates(err error) bool {
	var noCandidates *service.ErrNoCandidatesAvailable
	return errors.As(err, &noCandidates)
}
