package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mizan/internal/core"
	"mizan/internal/types"
)

// Shifts serves the checklist preview: the same priority-ordered task list
// the WhatsApp walkthrough follows, for display in the app.
type Shifts struct {
	repos types.RepositoryRegistry
}

// NewShifts creates the shifts handler.
func NewShifts(repos types.RepositoryRegistry) *Shifts {
	return &Shifts{repos: repos}
}

// Register mounts the shift routes under /v1.
func (h *Shifts) Register(r chi.Router) {
	r.Get("/shifts/{shiftID}/checklist", h.HandleChecklist)
}

// HandleChecklist returns the shift's checklist tasks in walkthrough order.
func (h *Shifts) HandleChecklist(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "shiftID")

	shift, err := h.repos.Shifts().GetShift(r.Context(), shiftID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if shift == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundShift, "shift not found", nil))
		return
	}

	tasks, err := h.repos.Shifts().ChecklistTasks(r.Context(), shiftID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tasks})
}
