package v1alpha1

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/uptend/dispatch/api/v1alpha1"
	"github.com/uptend/dispatch/internal/handlers/v1alpha1/mappers"
	"github.com/uptend/dispatch/internal/store/model"
	"github.com/uptend/dispatch/pkg/requestid"
)

// (POST /api/v1/jobs)
func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body v1alpha1.JobCreate
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.dispatchSrv.CreateJob(r.Context(), mappers.JobCreateFormApi(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if body.Dispatch {
		dispatched, err := h.dispatchSrv.Dispatch(r.Context(), job.ID)
		switch {
		case err == nil:
			job = dispatched
		case isNoCandidates(err):
			// the job exists and dispatch keeps retrying in the background
			requestid.Logger(r.Context(), "dispatch_handler").Infow("job created without candidates", "job_id", job.ID)
		default:
			h.fail(w, r, err)
			return
		}
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

// (GET /api/v1/jobs/{id})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.dispatchSrv.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

// (GET /api/v1/jobs/{id}/history)
func (h *ServiceHandler) GetDispatchHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	history, err := h.dispatchSrv.GetDispatchHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.HistoryToApi(*history))
}

// (GET /api/v1/jobs/{id}/quick-match)
func (h *ServiceHandler) QuickMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	candidates, err := h.dispatchSrv.QuickMatch(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.CandidatesToApi(candidates))
}

// (POST /api/v1/jobs/{id}/dispatch)
func (h *ServiceHandler) DispatchJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.dispatchSrv.Dispatch(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

// (POST /api/v1/jobs/{id}/claim)
func (h *ServiceHandler) ClaimJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var body v1alpha1.ProAction
	if !h.decode(w, r, &body) {
		return
	}

	result, err := h.dispatchSrv.TryClaim(r.Context(), id, body.ProId)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if !result.Won() {
		render.Status(r, http.StatusConflict)
	}
	render.JSON(w, r, mappers.ClaimResultToApi(*result))
}

// (POST /api/v1/jobs/{id}/check-in)
func (h *ServiceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var body v1alpha1.CheckIn
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.dispatchSrv.CheckIn(r.Context(), id, mappers.CheckInFormApi(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

// (POST /api/v1/jobs/{id}/delay)
func (h *ServiceHandler) ReportDelay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var body v1alpha1.DelayReport
	if !h.decode(w, r, &body) {
		return
	}

	report, err := h.dispatchSrv.ReportDelay(r.Context(), id, body.ProId, body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.DelayReportToApi(*report))
}

// (POST /api/v1/jobs/{id}/cancel)
func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var body v1alpha1.JobCancel
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.dispatchSrv.CancelJob(r.Context(), id, body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

// (POST /api/v1/jobs/{id}/decline)
func (h *ServiceHandler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	h.proAction(w, r, h.dispatchSrv.DeclineOffer)
}

// (POST /api/v1/jobs/{id}/en-route)
func (h *ServiceHandler) MarkEnRoute(w http.ResponseWriter, r *http.Request) {
	h.proAction(w, r, h.dispatchSrv.MarkEnRoute)
}

// (POST /api/v1/jobs/{id}/start)
func (h *ServiceHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	h.proAction(w, r, h.dispatchSrv.StartJob)
}

// (POST /api/v1/jobs/{id}/complete)
func (h *ServiceHandler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	h.proAction(w, r, h.dispatchSrv.CompleteJob)
}

type proActionFn func(ctx context.Context, jobID uuid.UUID, proID string) (*model.Job, error)

func (h *ServiceHandler) proAction(w http.ResponseWriter, r *http.Request, fn proActionFn) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var body v1alpha1.ProAction
	if !h.decode(w, r, &body) {
		return
	}

	job, err := fn(r.Context(), id, body.ProId)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}
