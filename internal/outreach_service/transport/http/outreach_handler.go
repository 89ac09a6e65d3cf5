package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/app"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/middleware"
)

// OutreachHandler exposes the sync and dispatch control API.
type OutreachHandler struct {
	sync       *app.SyncService
	dispatcher *app.Dispatcher
	ledger     *app.IdempotencyLedger
	contacts   domain.ContactRepository
	accounts   domain.ManagedAccountRepository
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewOutreachHandler creates the handler.
func NewOutreachHandler(
	sync *app.SyncService,
	dispatcher *app.Dispatcher,
	ledger *app.IdempotencyLedger,
	contacts domain.ContactRepository,
	accounts domain.ManagedAccountRepository,
	logger *slog.Logger,
	validate *validator.Validate,
) *OutreachHandler {
	return &OutreachHandler{
		sync:       sync,
		dispatcher: dispatcher,
		ledger:     ledger,
		contacts:   contacts,
		accounts:   accounts,
		logger:     logger.With("handler", "outreach"),
		validate:   validate,
	}
}

// RegisterRoutes mounts the outreach API.
func (h *OutreachHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sync", h.handleStartSync)
	r.Post("/dispatch", h.handleStartDispatch)
	r.Post("/dispatch/pause", h.handlePause)
	r.Post("/dispatch/resume", h.handleResume)
	r.Post("/dispatch/stop", h.handleStop)
	r.Get("/dispatch/status", h.handleStatus)
	r.Get("/accounts", h.handleListAccounts)
	r.Get("/accounts/{accountName}/contacts", h.handleListContacts)
	r.Put("/contacts/selection", h.handleUpdateSelection)
	r.Get("/contacts/{contactID}/deliveries", h.handleListDeliveries)
}

func (h *OutreachHandler) handleStartSync(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing authenticated scope")
		return
	}

	var req StartSyncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
	}

	result, err := h.sync.StartSync(r.Context(), scope, req.AccountNames)
	if err != nil {
		if errors.Is(err, domain.ErrTaskAlreadyRunning) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "Sync failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *OutreachHandler) handleStartDispatch(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing authenticated scope")
		return
	}

	var req StartDispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := req.ToDomainTask(scope)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, err := h.dispatcher.StartDispatch(task)
	if err != nil {
		if errors.Is(err, domain.ErrTaskAlreadyRunning) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, StartDispatchResponse{TaskID: taskID})
}

func (h *OutreachHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Pause(); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.dispatcher.Status())
}

func (h *OutreachHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.dispatcher.Resume()
	if err != nil {
		if errors.Is(err, domain.ErrNoResumableTask) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, StartDispatchResponse{TaskID: taskID})
}

func (h *OutreachHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Stop(); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.dispatcher.Status())
}

func (h *OutreachHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.dispatcher.Status())
}

func (h *OutreachHandler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing authenticated scope")
		return
	}
	accounts, err := h.accounts.ListByScope(r.Context(), scope)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list accounts", "error", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

func (h *OutreachHandler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing authenticated scope")
		return
	}
	accountName := chi.URLParam(r, "accountName")
	contacts, err := h.contacts.ListByAccount(r.Context(), scope, accountName)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list contacts", "error", err, "account", accountName)
		respondWithError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	respondWithJSON(w, http.StatusOK, contacts)
}

func (h *OutreachHandler) handleUpdateSelection(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing authenticated scope")
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.contacts.UpdateSelection(r.Context(), scope, req.ContactIDs, req.Selected); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "no matching contacts")
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to update selection", "error", err)
		respondWithError(w, http.StatusInternalServerError, "failed to update selection")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"updated": len(req.ContactIDs)})
}

func (h *OutreachHandler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing authenticated scope")
		return
	}
	contactID := chi.URLParam(r, "contactID")
	records, err := h.ledger.History(r.Context(), scope, contactID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list deliveries", "error", err, "contact_id", contactID)
		respondWithError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}
