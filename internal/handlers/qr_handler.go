package handlers

import (
	"net/http"

	"github.com/earnhub/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateInvite issues a referral invite for the caller
// @Summary Generate referral invite QR code
// @Description Returns a registration link carrying the caller as referrer, rendered as a base64 PNG
// @Tags referrals
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.Invite
// @Failure 401 {object} services.ErrorResponse
// @Router /referrals/invite [post]
func (h *QRHandler) GenerateInvite(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	invite, err := h.service.GenerateInvite(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, invite)
}

// ResolveInvite shows which account an invite code registers under
// @Summary Resolve invite code
// @Tags referrals
// @Accept json
// @Produce json
// @Param request body object{inviteCode=string} true "Invite lookup"
// @Success 200 {object} object{referrerId=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /referrals/invite/resolve [post]
func (h *QRHandler) ResolveInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"inviteCode" validate:"required,max=64"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	referrerID, err := h.service.ResolveInvite(r.Context(), req.InviteCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"referrerId": referrerID})
}
