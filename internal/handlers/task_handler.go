package handlers

import (
	"net/http"

	"github.com/earnhub/backend/internal/services"
	"github.com/shopspring/decimal"
)

type TaskHandler struct {
	tasks     *services.TaskService
	validator *services.ValidationHelper
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks, validator: services.NewValidationHelper()}
}

// CompleteTaskReward is called by the video subsystem once a task is verified
// @Summary Credit a task reward
// @Tags tasks
// @Security BearerAuth
// @Accept json
// @Param request body object{accountId=string,taskId=string,amount=string} true "Task reward"
// @Success 200 {object} services.TaskRewardResult
// @Failure 429 {object} services.ErrorResponse "Daily limit reached"
// @Router /tasks/rewards [post]
func (h *TaskHandler) CompleteTaskReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string          `json:"accountId" validate:"required"`
		TaskID    string          `json:"taskId" validate:"required,max=128"`
		Amount    decimal.Decimal `json:"amount" validate:"amount"`
	}
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.tasks.CompleteTaskReward(r.Context(), req.AccountID, req.TaskID, req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// Usage
// @Summary Today's task allowance of the caller
// @Tags tasks
// @Security BearerAuth
// @Success 200 {object} services.TaskUsage
// @Router /tasks/usage [get]
func (h *TaskHandler) Usage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	usage, err := h.tasks.Usage(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond(w, http.StatusOK, usage)
}
