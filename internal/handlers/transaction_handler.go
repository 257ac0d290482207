package handlers

import (
	"net/http"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// TransactionHandler exposes deposits and withdrawals to users and the review queue to admins
type TransactionHandler struct {
	transactions *services.TransactionService
	settings     services.SettingsSource
	validator    *services.ValidationHelper
}

func NewTransactionHandler(transactions *services.TransactionService, settings services.SettingsSource) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		settings:     settings,
		validator:    services.NewValidationHelper(),
	}
}

type reviewRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=500"`
}

// CreateDeposit
// @Summary Create deposit request
// @Tags deposits
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{amount=string,paymentMethod=string} true "Deposit request"
// @Success 201 {object} models.Deposit
// @Router /deposits [post]
func (h *TransactionHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount        decimal.Decimal `json:"amount" validate:"amount"`
		PaymentMethod string          `json:"paymentMethod" validate:"required,max=50"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	deposit, err := h.transactions.CreateDeposit(r.Context(), accountID, req.Amount, req.PaymentMethod)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, deposit)
}

// SubmitDepositProof
// @Summary Attach the bank transfer code to a pending deposit
// @Tags deposits
// @Security BearerAuth
// @Accept json
// @Param depositId path string true "Deposit ID"
// @Param request body object{ftCode=string} true "Transfer code"
// @Router /deposits/{depositId}/proof [post]
func (h *TransactionHandler) SubmitDepositProof(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		FTCode string `json:"ftCode" validate:"required,max=64"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	deposit, err := h.transactions.SubmitDepositProof(r.Context(), accountID, chi.URLParam(r, "depositId"), req.FTCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, deposit)
}

// GetDeposit returns one of the caller's deposits
// @Router /deposits/{depositId} [get]
func (h *TransactionHandler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	deposit, err := h.transactions.GetDeposit(r.Context(), chi.URLParam(r, "depositId"))
	if err != nil || deposit.AccountID != accountID {
		writeServiceError(w, r, services.ErrNotFound)
		return
	}
	respond(w, http.StatusOK, deposit)
}

// QuoteWithdrawal splits an amount into tax and net without reserving anything
// @Router /withdrawals/quote [get]
func (h *TransactionHandler) QuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		services.SendErrorResponse(w, "amount query parameter is required", http.StatusBadRequest, nil)
		return
	}
	if err := services.ValidateAmount(amount); err != nil {
		writeServiceError(w, r, err)
		return
	}

	settings := h.settings.Current()
	tax, net := services.WithdrawalQuote(settings, amount)
	respond(w, http.StatusOK, map[string]any{
		"amount":     amount,
		"taxPercent": settings.WithdrawalTaxPercent,
		"taxAmount":  tax,
		"netAmount":  net,
		"minAmount":  settings.WithdrawalMinAmount,
		"minRank":    settings.WithdrawalMinRank,
	})
}

// CreateWithdrawal
// @Summary Request a withdrawal
// @Description Verifies the transaction password and reserves the gross amount from the chosen wallet
// @Tags withdrawals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{amount=string,wallet=string,transactionPassword=string} true "Withdrawal request"
// @Success 201 {object} models.Withdrawal
// @Failure 401 {object} services.ErrorResponse "Bad transaction password"
// @Failure 422 {object} services.ErrorResponse "Insufficient balance"
// @Router /withdrawals [post]
func (h *TransactionHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount              decimal.Decimal `json:"amount" validate:"amount"`
		Wallet              string          `json:"wallet" validate:"required,wallet"`
		TransactionPassword string          `json:"transactionPassword" validate:"required"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	withdrawal, err := h.transactions.CreateWithdrawal(r.Context(), accountID, req.Amount, models.Wallet(req.Wallet), req.TransactionPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, withdrawal)
}

// GetWithdrawal returns one of the caller's withdrawals
// @Router /withdrawals/{withdrawalId} [get]
func (h *TransactionHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	withdrawal, err := h.transactions.GetWithdrawal(r.Context(), chi.URLParam(r, "withdrawalId"))
	if err != nil || withdrawal.AccountID != accountID {
		writeServiceError(w, r, services.ErrNotFound)
		return
	}
	respond(w, http.StatusOK, withdrawal)
}

// ListDeposits is the admin review queue
// @Tags admin
// @Param status query string false "pending, ft_submitted, approved, rejected"
// @Router /admin/deposits [get]
func (h *TransactionHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.transactions.ListDeposits(r.Context(), r.URL.Query().Get("status"), limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, deposits)
}

// ReviewDeposit handles approve, reject and undo
// @Tags admin
// @Param depositId path string true "Deposit ID"
// @Param action path string true "approve, reject or undo"
// @Router /admin/deposits/{depositId}/{action} [post]
func (h *TransactionHandler) ReviewDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, h.validator, &req) {
		return
	}

	depositID := chi.URLParam(r, "depositId")
	var (
		deposit *models.Deposit
		err     error
	)
	switch chi.URLParam(r, "action") {
	case "approve":
		deposit, err = h.transactions.ApproveDeposit(r.Context(), depositID, adminID, req.Notes)
	case "reject":
		deposit, err = h.transactions.RejectDeposit(r.Context(), depositID, adminID, req.Notes)
	case "undo":
		deposit, err = h.transactions.UndoDeposit(r.Context(), depositID, adminID)
	default:
		services.SendErrorResponse(w, "Unknown action", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, deposit)
}

// ListWithdrawals is the admin review queue
// @Tags admin
// @Router /admin/withdrawals [get]
func (h *TransactionHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.transactions.ListWithdrawals(r.Context(), r.URL.Query().Get("status"), limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, withdrawals)
}

// ReviewWithdrawal handles approve, reject and undo
// @Tags admin
// @Router /admin/withdrawals/{withdrawalId}/{action} [post]
func (h *TransactionHandler) ReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, h.validator, &req) {
		return
	}

	withdrawalID := chi.URLParam(r, "withdrawalId")
	var (
		withdrawal *models.Withdrawal
		err        error
	)
	switch chi.URLParam(r, "action") {
	case "approve":
		withdrawal, err = h.transactions.ApproveWithdrawal(r.Context(), withdrawalID, adminID, req.Notes)
	case "reject":
		withdrawal, err = h.transactions.RejectWithdrawal(r.Context(), withdrawalID, adminID, req.Notes)
	case "undo":
		withdrawal, err = h.transactions.UndoWithdrawal(r.Context(), withdrawalID, adminID)
	default:
		services.SendErrorResponse(w, "Unknown action", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, withdrawal)
}
