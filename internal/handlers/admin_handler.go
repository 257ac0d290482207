package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AdminHandler holds operator tooling around the ledger
type AdminHandler struct {
	accounts    *services.AccountService
	ledger      *services.LedgerService
	commissions *services.CommissionService
	salary      *services.SalaryService
	validator   *services.ValidationHelper
}

func NewAdminHandler(accounts *services.AccountService, ledger *services.LedgerService,
	commissions *services.CommissionService, salary *services.SalaryService) *AdminHandler {
	return &AdminHandler{
		accounts:    accounts,
		ledger:      ledger,
		commissions: commissions,
		salary:      salary,
		validator:   services.NewValidationHelper(),
	}
}

// GetAccount
// @Tags admin
// @Router /admin/accounts/{accountId} [get]
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, account)
}

// GetLedger
// @Tags admin
// @Router /admin/accounts/{accountId}/ledger [get]
func (h *AdminHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Statement(r.Context(), chi.URLParam(r, "accountId"), limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, entries)
}

// VerifyAccount recomputes both wallets from the ledger
// @Summary Verify cached balances against ledger entries
// @Tags admin
// @Success 200 {array} models.WalletReconciliation
// @Router /admin/accounts/{accountId}/verify [post]
func (h *AdminHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.Verify(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// ReconcileAccount lifts a ledger freeze once balances match
// @Summary Unfreeze a reconciled account
// @Tags admin
// @Failure 500 {object} services.ErrorResponse "Balances still disagree"
// @Router /admin/accounts/{accountId}/reconcile [post]
func (h *AdminHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := callerID(w, r)
	if !ok {
		return
	}
	result, err := h.ledger.Reconcile(r.Context(), chi.URLParam(r, "accountId"), operatorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// ReplayCommissions re-delivers the cascade of an earning event. Hops already paid are not paid twice.
// @Summary Replay a commission cascade
// @Tags admin
// @Accept json
// @Param request body services.CommissionEvent true "Earning event"
// @Router /admin/commissions/replay [post]
func (h *AdminHandler) ReplayCommissions(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Source      string          `json:"source" validate:"required,oneof=task-reward rank-upgrade"`
		EventID     string          `json:"eventId" validate:"required,max=128"`
		AccountID   string          `json:"accountId" validate:"required"`
		Base        decimal.Decimal `json:"base" validate:"amount"`
		EarnerLevel string          `json:"earnerLevel,omitempty" validate:"omitempty,level"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	ev := services.CommissionEvent{
		Source:    models.CommissionSource(req.Source),
		EventID:   req.EventID,
		AccountID: req.AccountID,
		Base:      req.Base,
	}
	if req.EarnerLevel != "" {
		ev.EarnerLevel, _ = models.ParseLevel(req.EarnerLevel)
	}

	log.Printf("[COMMISSION] Replay of %s/%s requested by %s", ev.Source, ev.EventID, operatorID)
	paid, err := h.commissions.Cascade(r.Context(), ev)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"paid": paid})
}

// RunSalary evaluates a period on demand
// @Summary Run the salary evaluation for a month
// @Tags admin
// @Accept json
// @Param request body object{period=string} false "YYYY-MM, defaults to the previous month"
// @Success 200 {object} services.SalaryRunReport
// @Failure 409 {object} services.ErrorResponse "Run in progress"
// @Router /admin/salary/run [post]
func (h *AdminHandler) RunSalary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period string `json:"period,omitempty" validate:"omitempty,datetime=2006-01"`
	}
	if r.ContentLength != 0 && !decodeRequest(w, r, h.validator, &req) {
		return
	}
	period := req.Period
	if period == "" {
		period = services.PreviousSalaryPeriod(h.ledger.Now())
	}

	report, err := h.salary.Run(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("salary run %s: %w", period, err))
		return
	}
	respond(w, http.StatusOK, report)
}
