package handlers

import (
	"net/http"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
)

type BankHandler struct {
	banks     *services.BankChangeService
	validator *services.ValidationHelper
}

func NewBankHandler(banks *services.BankChangeService) *BankHandler {
	return &BankHandler{banks: banks, validator: services.NewValidationHelper()}
}

// ListBanks
// @Summary Supported payout banks and wallets
// @Tags bank
// @Success 200 {array} services.Bank
// @Router /banks [get]
func (h *BankHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.banks.Banks())
}

// GetBankState
// @Summary Current payout destination and any pending change
// @Tags bank
// @Security BearerAuth
// @Success 200 {object} services.BankChangeState
// @Router /bank-account [get]
func (h *BankHandler) GetBankState(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	state, err := h.banks.GetBankState(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, state)
}

// SetBankAccount
// @Summary Set or change the payout destination
// @Description The first destination applies at once; later changes need three confirmations on distinct days
// @Tags bank
// @Security BearerAuth
// @Accept json
// @Param request body models.BankDetails true "Bank details"
// @Success 200 {object} services.BankChangeState
// @Failure 409 {object} services.ErrorResponse "Change already pending"
// @Router /bank-account [put]
func (h *BankHandler) SetBankAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req models.BankDetails
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	state, err := h.banks.SetBankAccount(r.Context(), accountID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, state)
}

// ConfirmBankChange
// @Summary Confirm or decline the pending bank change for today
// @Tags bank
// @Security BearerAuth
// @Accept json
// @Param request body object{confirmed=bool} true "Confirmation"
// @Failure 409 {object} services.ErrorResponse "Already confirmed today"
// @Router /bank-account/confirm [post]
func (h *BankHandler) ConfirmBankChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Confirmed *bool `json:"confirmed" validate:"required"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	state, err := h.banks.ConfirmBankChange(r.Context(), accountID, *req.Confirmed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, state)
}

// CancelBankChange
// @Summary Discard the pending bank change
// @Tags bank
// @Security BearerAuth
// @Router /bank-account/pending [delete]
func (h *BankHandler) CancelBankChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	state, err := h.banks.CancelBankChange(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, state)
}
