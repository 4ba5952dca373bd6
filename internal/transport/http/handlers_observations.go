package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"naturewatch/internal/ingest"
	"naturewatch/internal/observation"
	"naturewatch/internal/verification"
	id "naturewatch/pkg/domain"
	dErrors "naturewatch/pkg/domain-errors"
	"naturewatch/pkg/platform/httputil"
	"naturewatch/pkg/requestcontext"
)

// HandleSubmitObservation handles POST /observations.
func (h *Handler) HandleSubmitObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitObservationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	domainReq, err := req.toDomain(userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.ingest.ValidateAndIngest(ctx, domainReq)
	if err != nil {
		h.logger.WarnContext(ctx, "submission rejected",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Retried() {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, fromSubmitResult(result))
}

// HandleSyncObservations handles POST /observations/sync.
func (h *Handler) HandleSyncObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SyncRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if len(req.Items) == 0 {
		httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, "items", "must not be empty"))
		return
	}

	items := make([]ingest.SubmitRequest, 0, len(req.Items))
	for _, item := range req.Items {
		domainReq, err := item.toDomain(userID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		items = append(items, domainReq)
	}

	results, err := h.ingest.SyncBatch(ctx, items)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSyncResults(results))
}

// HandleGetObservation handles GET /observations/{id}.
func (h *Handler) HandleGetObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	obsID, err := id.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	obs, err := h.ingest.Get(ctx, obsID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}

// HandleResolveConflict handles POST /observations/{id}/resolve.
func (h *Handler) HandleResolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	obsID, err := id.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveConflictRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	resolution, err := observation.ParseConflictResolution(req.Resolution)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	obs, err := h.ingest.ResolveConflict(ctx, obsID, userID, resolution)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}

// HandleSubmitVerification handles POST /observations/{id}/verifications.
func (h *Handler) HandleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	obsID, err := id.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitVerificationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	tier, err := verification.ParseTier(req.Tier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.verifications.SubmitVerification(ctx, obsID, userID, tier, req.Confidence, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromVerification(rec))
}

// HandleRaiseDispute handles POST /observations/{id}/disputes.
func (h *Handler) HandleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	obsID, err := id.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RaiseDisputeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	d, err := h.verifications.RaiseDispute(ctx, obsID, userID, req.Reason, req.Evidence)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromDispute(d, disputeTallyZero))
}

// HandleRefreshObservation handles POST /observations/{id}/refresh. The body
// is optional; resubmitted evidence refs ride along with the freshness reset.
func (h *Handler) HandleRefreshObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.caller(w, ctx)
	if !ok {
		return
	}
	obsID, err := id.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req RefreshObservationRequest
	if r.ContentLength != 0 {
		req, ok = httputil.DecodeAndPrepare[RefreshObservationRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	obs, err := h.verifications.RefreshExpired(ctx, obsID, userID, req.NewEvidence)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}
