package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"naturewatch/internal/dispute"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/httputil"
	"naturewatch/pkg/requestcontext"
)

// disputeTallyZero is the tally for a freshly opened dispute.
var disputeTallyZero = dispute.Tally{}

// HandleGetDispute handles GET /disputes/{id}.
func (h *Handler) HandleGetDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.caller(w, ctx); !ok {
		return
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, tally, err := h.disputes.Get(ctx, disputeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromDispute(d, tally))
}

// HandleCastVote handles POST /disputes/{id}/votes.
func (h *Handler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CastVoteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	choice, err := dispute.ParseChoice(req.Choice)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	vote, err := h.disputes.CastVote(ctx, disputeID, userID, choice)
	if err != nil {
		h.logger.InfoContext(ctx, "vote rejected",
			"request_id", requestID,
			"dispute_id", disputeID,
			"voter_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromVote(vote))
}

// caller extracts the authenticated user or writes a 401.
func (h *Handler) caller(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}
