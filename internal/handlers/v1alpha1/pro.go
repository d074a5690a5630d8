package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/uptend/dispatch/api/v1alpha1"
	"github.com/uptend/dispatch/internal/handlers/v1alpha1/mappers"
	"github.com/uptend/dispatch/internal/handlers/validator"
)

// (GET /api/v1/pros/{id})
func (h *ServiceHandler) GetPro(w http.ResponseWriter, r *http.Request) {
	pro, err := h.dispatchSrv.GetPro(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.ProToApi(*pro))
}

// (PUT /api/v1/pros/{id})
func (h *ServiceHandler) UpsertPro(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.Struct(v1alpha1.ProAction{ProId: id}); err != nil {
		h.fail(w, r, validator.NewErrInvalidRequest("invalid pro id %q", id))
		return
	}

	var body v1alpha1.ProUpdate
	if !h.decode(w, r, &body) {
		return
	}

	pro, err := h.dispatchSrv.UpsertPro(r.Context(), mappers.ProFormApi(id, body))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.JSON(w, r, mappers.ProToApi(*pro))
}
