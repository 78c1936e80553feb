package handler

import (
	"net/http"

	"grantsbackend/internal/middleware"
	"grantsbackend/internal/model"
	"grantsbackend/internal/service"
	"grantsbackend/pkg/response"

	"github.com/gin-gonic/gin"
)

type BudgetHandler struct {
	budgetService service.BudgetSSOTService
}

func NewBudgetHandler(budgetService service.BudgetSSOTService) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

func (h *BudgetHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/budgets")
	{
		group.POST("", middleware.RequirePermission(model.PermBudgetsWrite), h.CreateBudget)
		group.GET("/:id", middleware.RequirePermission(model.PermBudgetsRead), h.GetBudget)
		group.PATCH("/:id", middleware.RequirePermission(model.PermBudgetsWrite), h.UpdateBudget)
		group.POST("/:id/lines", middleware.RequirePermission(model.PermBudgetsWrite), h.AddBudgetLines)
		group.DELETE("/:id/lines/:lineId", middleware.RequirePermission(model.PermBudgetsWrite), h.RemoveBudgetLine)
		group.POST("/:id/transition", middleware.RequirePermission(model.PermBudgetsTransition), h.TransitionStatus)
	}
}

// CreateBudget godoc
// @Summary      Create a budget
// @Description  Creates a DRAFT budget for an active partner, optionally seeded from a BUDGET template
// @Tags         budgets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                      false  "Idempotency key"
// @Param        request          body      service.CreateBudgetInput   true   "Budget"
// @Success      201              {object}  response.Response{data=service.BudgetResponse}
// @Failure      400              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Router       /api/budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var in service.CreateBudgetInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.ActorID = actor
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	budget, err := h.budgetService.CreateBudget(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, budget))
}

// GetBudget godoc
// @Summary      Get a budget
// @Description  Returns the budget with its lines
// @Tags         budgets
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Budget ID"
// @Success      200  {object}  response.Response{data=service.BudgetResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	budget, err := h.budgetService.GetBudget(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, budget))
}

// UpdateBudget godoc
// @Summary      Update a budget
// @Description  Changes currency or rules while the budget is DRAFT or REJECTED
// @Tags         budgets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Budget ID"
// @Param        request  body      service.UpdateBudgetInput  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.BudgetResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/budgets/{id} [patch]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.UpdateBudgetInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.BudgetID = id
	in.ActorID = actor
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	budget, err := h.budgetService.UpdateBudget(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, budget))
}

// AddBudgetLines godoc
// @Summary      Add budget lines
// @Description  Inserts new lines, replaces resent ones and recomputes the ceiling
// @Tags         budgets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id               path      string                       true   "Budget ID"
// @Param        Idempotency-Key  header    string                       false  "Idempotency key"
// @Param        request          body      service.AddBudgetLinesInput  true   "Lines"
// @Success      200              {object}  response.Response{data=service.BudgetResponse}
// @Failure      409              {object}  response.Response
// @Router       /api/budgets/{id}/lines [post]
func (h *BudgetHandler) AddBudgetLines(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.AddBudgetLinesInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.BudgetID = id
	in.ActorID = actor
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	budget, err := h.budgetService.AddBudgetLines(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, budget))
}

// RemoveBudgetLine godoc
// @Summary      Remove a budget line
// @Tags         budgets
// @Security     BearerAuth
// @Produce      json
// @Param        id               path      string  true   "Budget ID"
// @Param        lineId           path      string  true   "Line ID"
// @Param        Idempotency-Key  header    string  false  "Idempotency key"
// @Success      200              {object}  response.Response{data=service.BudgetResponse}
// @Failure      404              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Router       /api/budgets/{id}/lines/{lineId} [delete]
func (h *BudgetHandler) RemoveBudgetLine(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	lineID, ok := uuidParam(c, "lineId")
	if !ok {
		return
	}
	in := service.RemoveBudgetLineInput{BudgetID: id, LineID: lineID, ActorID: actor}
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	budget, err := h.budgetService.RemoveBudgetLine(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, budget))
}

// TransitionStatus godoc
// @Summary      Transition a budget
// @Description  Moves the budget to next_status. Replays with the same idempotency key return the first response.
// @Tags         budgets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id               path      string                         true   "Budget ID"
// @Param        Idempotency-Key  header    string                         false  "Idempotency key"
// @Param        X-Request-Hash   header    string                         false  "Request hash"
// @Param        request          body      service.TransitionBudgetInput  true   "Next status"
// @Success      200              {object}  response.Response{data=service.BudgetResponse}
// @Failure      400              {object}  response.Response
// @Failure      404              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Failure      503              {object}  response.Response
// @Router       /api/budgets/{id}/transition [post]
func (h *BudgetHandler) TransitionStatus(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.TransitionBudgetInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.BudgetID = id
	in.ActorID = actor
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	budget, err := h.budgetService.TransitionStatus(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, budget))
}
