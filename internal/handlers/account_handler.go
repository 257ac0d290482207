package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
)

type AccountHandler struct {
	accounts  *services.AccountService
	auth      *services.AuthService
	ledger    *services.LedgerService
	invites   *services.QRService
	validator *services.ValidationHelper
}

func NewAccountHandler(accounts *services.AccountService, auth *services.AuthService,
	ledger *services.LedgerService, invites *services.QRService) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		auth:      auth,
		ledger:    ledger,
		invites:   invites,
		validator: services.NewValidationHelper(),
	}
}

type tokenResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   *models.Account `json:"account,omitempty"`
}

// Register creates an Intern account
// @Summary Register account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{transactionPassword=string,referrerId=string,inviteCode=string} true "Registration request"
// @Success 201 {object} tokenResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse "Unknown referrer"
// @Router /auth/register [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req struct {
		TransactionPassword string `json:"transactionPassword" validate:"required,min=4,max=64"`
		ReferrerID          string `json:"referrerId,omitempty" validate:"omitempty,max=64"`
		InviteCode          string `json:"inviteCode,omitempty" validate:"omitempty,max=64"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	referrerID := req.ReferrerID
	if req.InviteCode != "" {
		invited, err := h.invites.ResolveInvite(r.Context(), req.InviteCode)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if referrerID != "" && referrerID != invited {
			services.SendErrorResponse(w, "Invite code does not match referrer", http.StatusBadRequest, nil)
			return
		}
		referrerID = invited
	}

	account, err := h.accounts.CreateAccount(r.Context(), referrerID, req.TransactionPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, expiresAt, err := h.auth.IssueToken(account.ID, services.RoleUser)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for account %s: %v", account.ID, err)
		services.SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}
	respond(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: expiresAt, Account: account})
}

// Login exchanges account id and transaction password for a token
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{accountId=string,transactionPassword=string} true "Login request"
// @Success 200 {object} tokenResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/login [post]
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID           string `json:"accountId" validate:"required"`
		TransactionPassword string `json:"transactionPassword" validate:"required"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	token, expiresAt, err := h.auth.Login(r.Context(), req.AccountID, req.TransactionPassword)
	if err != nil {
		if errors.Is(err, services.ErrAuthenticationFailure) {
			services.SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Logout revokes the bearer token
// @Summary Logout
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// GetAccount returns the caller's account with both balances
// @Summary Get account
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Account
// @Router /accounts/me [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, account)
}

// GetBalances returns the cached income and personal balances
// @Summary Get balances
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Router /accounts/me/balances [get]
func (h *AccountHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	account, err := h.ledger.Balances(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"incomeWallet":   account.IncomeWallet,
		"personalWallet": account.PersonalWallet,
		"frozen":         account.LedgerFrozen,
	})
}

// GetLedger returns the newest ledger entries of the caller
// @Summary Get ledger statement
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Max entries (default 100)"
// @Router /accounts/me/ledger [get]
func (h *AccountHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.Statement(r.Context(), accountID, limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, entries)
}

// SetTransactionPassword replaces the caller's transaction password
// @Summary Change transaction password
// @Tags accounts
// @Security BearerAuth
// @Accept json
// @Param request body object{currentPassword=string,newPassword=string} true "Password change"
// @Router /accounts/me/transaction-password [put]
func (h *AccountHandler) SetTransactionPassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword" validate:"required,min=4,max=64"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}
	if err := h.accounts.SetTransactionPassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "Transaction password updated"})
}
