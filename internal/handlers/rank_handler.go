package handlers

import (
	"fmt"
	"net/http"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/services"
)

type RankHandler struct {
	ranks     *services.RankService
	validator *services.ValidationHelper
}

func NewRankHandler(ranks *services.RankService) *RankHandler {
	return &RankHandler{ranks: ranks, validator: services.NewValidationHelper()}
}

// ListRanks
// @Summary Rank table with prices
// @Tags ranks
// @Success 200 {array} services.RankInfo
// @Router /ranks [get]
func (h *RankHandler) ListRanks(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.ranks.ListRanks())
}

// RequestUpgrade
// @Summary Buy a higher rank
// @Description Debits the personal wallet, credits the upgrade bonus and pays upstream commissions
// @Tags ranks
// @Security BearerAuth
// @Accept json
// @Param request body object{targetLevel=string} true "Target rank, e.g. rank_2 or Rank 2"
// @Success 200 {object} services.RankUpgradeResult
// @Failure 400 {object} services.ErrorResponse "Invalid rank target"
// @Failure 422 {object} services.ErrorResponse "Insufficient balance"
// @Router /ranks/upgrade [post]
func (h *RankHandler) RequestUpgrade(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		TargetLevel string `json:"targetLevel" validate:"required"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	target, err := models.ParseLevel(req.TargetLevel)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("%w: %v", services.ErrInvalidRankTarget, err))
		return
	}

	result, err := h.ranks.RequestUpgrade(r.Context(), accountID, target)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// History
// @Summary Upgrade attempts of the caller
// @Tags ranks
// @Security BearerAuth
// @Router /ranks/history [get]
func (h *RankHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	history, err := h.ranks.History(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, history)
}
