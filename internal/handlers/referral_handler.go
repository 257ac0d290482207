package handlers

import (
	"net/http"
	"strconv"

	"github.com/earnhub/backend/internal/services"
)

// ReferralHandler serves the caller's network views: downline, commissions and salary status
type ReferralHandler struct {
	referrals   *services.ReferralService
	commissions *services.CommissionService
	salary      *services.SalaryService
}

func NewReferralHandler(referrals *services.ReferralService, commissions *services.CommissionService,
	salary *services.SalaryService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, commissions: commissions, salary: salary}
}

// GetDownline
// @Summary Referral downline
// @Tags referrals
// @Security BearerAuth
// @Param depth query int false "Max depth, 0 for the whole tree"
// @Success 200 {object} services.Downline
// @Router /referrals/downline [get]
func (h *ReferralHandler) GetDownline(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			services.SendErrorResponse(w, "depth must be a non-negative integer", http.StatusBadRequest, nil)
			return
		}
		depth = d
	}

	downline, err := h.referrals.GetDownline(r.Context(), accountID, depth)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, downline)
}

// GetCommissions
// @Summary Commissions earned by the caller
// @Tags referrals
// @Security BearerAuth
// @Router /referrals/commissions [get]
func (h *ReferralHandler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	commissions, err := h.commissions.GetCommissions(r.Context(), accountID, limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, commissions)
}

// GetSalaryStatus
// @Summary Live salary qualification and past payouts
// @Tags salary
// @Security BearerAuth
// @Success 200 {object} services.SalaryStatus
// @Router /salary/status [get]
func (h *ReferralHandler) GetSalaryStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	status, err := h.salary.GetSalaryStatus(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, status)
}
