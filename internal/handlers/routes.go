package handlers

import (
	mW "github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// Handlers bundles every API handler for mounting
type Handlers struct {
	Accounts     *AccountHandler
	Transactions *TransactionHandler
	Ranks        *RankHandler
	Referrals    *ReferralHandler
	QR           *QRHandler
	Banks        *BankHandler
	Tasks        *TaskHandler
	Admin        *AdminHandler
}

// Mount registers the /api/v1 routes on r.
func (h *Handlers) Mount(r chi.Router, tokens mW.TokenParser) {
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", h.Accounts.Register)
		r.Post("/auth/login", h.Accounts.Login)
		r.Get("/ranks", h.Ranks.ListRanks)
		r.Get("/banks", h.Banks.ListBanks)
		r.Post("/referrals/invite/resolve", h.QR.ResolveInvite)

		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(tokens))
			r.Post("/auth/logout", h.Accounts.Logout)

			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole(services.RoleUser))

				r.Get("/accounts/me", h.Accounts.GetAccount)
				r.Get("/accounts/me/balances", h.Accounts.GetBalances)
				r.Get("/accounts/me/ledger", h.Accounts.GetLedger)
				r.Put("/accounts/me/transaction-password", h.Accounts.SetTransactionPassword)

				r.Post("/deposits", h.Transactions.CreateDeposit)
				r.Get("/deposits/{depositId}", h.Transactions.GetDeposit)
				r.Post("/deposits/{depositId}/proof", h.Transactions.SubmitDepositProof)
				r.Get("/withdrawals/quote", h.Transactions.QuoteWithdrawal)
				r.Post("/withdrawals", h.Transactions.CreateWithdrawal)
				r.Get("/withdrawals/{withdrawalId}", h.Transactions.GetWithdrawal)

				r.Post("/ranks/upgrade", h.Ranks.RequestUpgrade)
				r.Get("/ranks/history", h.Ranks.History)

				r.Get("/referrals/downline", h.Referrals.GetDownline)
				r.Get("/referrals/commissions", h.Referrals.GetCommissions)
				r.Post("/referrals/invite", h.QR.GenerateInvite)
				r.Get("/salary/status", h.Referrals.GetSalaryStatus)

				r.Get("/bank-account", h.Banks.GetBankState)
				r.Put("/bank-account", h.Banks.SetBankAccount)
				r.Post("/bank-account/confirm", h.Banks.ConfirmBankChange)
				r.Delete("/bank-account/pending", h.Banks.CancelBankChange)

				r.Get("/tasks/usage", h.Tasks.Usage)
			})

			// Task/video subsystem
			r.With(mW.RequireRole(services.RoleService)).Post("/tasks/rewards", h.Tasks.CompleteTaskReward)

			r.Route("/admin", func(r chi.Router) {
				r.Use(mW.RequireRole(services.RoleAdmin))

				r.Get("/deposits", h.Transactions.ListDeposits)
				r.Post("/deposits/{depositId}/{action}", h.Transactions.ReviewDeposit)
				r.Get("/withdrawals", h.Transactions.ListWithdrawals)
				r.Post("/withdrawals/{withdrawalId}/{action}", h.Transactions.ReviewWithdrawal)

				r.Get("/accounts/{accountId}", h.Admin.GetAccount)
				r.Get("/accounts/{accountId}/ledger", h.Admin.GetLedger)
				r.Post("/accounts/{accountId}/verify", h.Admin.VerifyAccount)
				r.Post("/accounts/{accountId}/reconcile", h.Admin.ReconcileAccount)
				r.Post("/commissions/replay", h.Admin.ReplayCommissions)
				r.Post("/salary/run", h.Admin.RunSalary)
			})
		})
	})
}
