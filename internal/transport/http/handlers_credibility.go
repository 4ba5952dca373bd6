package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/httputil"
)

// HandleGetCredibility handles GET /users/{id}/credibility.
func (h *Handler) HandleGetCredibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.caller(w, ctx); !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summary, err := h.credibility.Current(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSummary(summary))
}

// HandleGetSuggestions handles GET /users/{id}/credibility/suggestions.
// Suggestions are personal; callers read only their own.
func (h *Handler) HandleGetSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if userID != callerID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotOwner, "suggestions are available only to the account owner"))
		return
	}

	suggestions, err := h.credibility.ImprovementSuggestions(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSuggestions(suggestions))
}
