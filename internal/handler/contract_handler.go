package handler

import (
	"net/http"

	"grantsbackend/internal/middleware"
	"grantsbackend/internal/model"
	"grantsbackend/internal/service"
	"grantsbackend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	contractService service.ContractSSOTService
}

func NewContractHandler(contractService service.ContractSSOTService) *ContractHandler {
	return &ContractHandler{contractService: contractService}
}

func (h *ContractHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/contracts")
	{
		group.POST("", middleware.RequirePermission(model.PermContractsWrite), h.CreateContract)
		group.GET("/:id", middleware.RequirePermission(model.PermContractsRead), h.GetContract)
		group.PATCH("/:id", middleware.RequirePermission(model.PermContractsWrite), h.UpdateContract)

		lifecycle := group.Group("/:id")
		lifecycle.Use(middleware.RequirePermission(model.PermContractsTransition))
		lifecycle.POST("/generate", h.Generate)
		lifecycle.POST("/submit", h.SubmitForApproval)
		lifecycle.POST("/approve", h.MarkApproved)
		lifecycle.POST("/send-for-sign", h.SendForSign)
		lifecycle.POST("/sign", h.MarkSigned)
		lifecycle.POST("/activate", h.Activate)
		lifecycle.POST("/cancel", h.Cancel)
	}
}

// prepareAction binds the optional body into body and fills the contract id,
// actor and idempotency headers into act, which must point inside body.
func (h *ContractHandler) prepareAction(c *gin.Context, body any, act *service.ContractActionInput) bool {
	actor, ok := actorID(c)
	if !ok {
		return false
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return false
	}
	if !bindJSON(c, body, true) {
		return false
	}
	act.ContractID = id
	act.ActorID = actor
	idempotencyHeaders(c, &act.IdempotencyKey, &act.RequestHash)
	return true
}

func (h *ContractHandler) respond(c *gin.Context, contract service.ContractResponse, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, contract))
}

// CreateContract godoc
// @Summary      Create a contract
// @Description  Creates a DRAFT contract against an APPROVED or LOCKED budget of the same partner
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                       false  "Idempotency key"
// @Param        request          body      service.CreateContractInput  true   "Contract"
// @Success      201              {object}  response.Response{data=service.ContractResponse}
// @Failure      400              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Router       /api/contracts [post]
func (h *ContractHandler) CreateContract(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var in service.CreateContractInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.ActorID = actor
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	contract, err := h.contractService.CreateContract(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, contract))
}

// GetContract godoc
// @Summary      Get a contract
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Contract ID"
// @Success      200  {object}  response.Response{data=service.ContractResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/contracts/{id} [get]
func (h *ContractHandler) GetContract(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	contract, err := h.contractService.GetContract(c.Request.Context(), id)
	h.respond(c, contract, err)
}

// UpdateContract godoc
// @Summary      Update a contract
// @Description  Changes the title until the contract is signed
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Contract ID"
// @Param        request  body      service.UpdateContractInput  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.ContractResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/contracts/{id} [patch]
func (h *ContractHandler) UpdateContract(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.UpdateContractInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.ContractID = id
	in.ActorID = actor
	idempotencyHeaders(c, &in.IdempotencyKey, &in.RequestHash)

	contract, err := h.contractService.UpdateContract(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// Generate godoc
// @Summary      Record the generated contract document
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id               path      string                         true   "Contract ID"
// @Param        Idempotency-Key  header    string                         false  "Idempotency key"
// @Param        request          body      service.GenerateContractInput  true   "Document key"
// @Success      200              {object}  response.Response{data=service.ContractResponse}
// @Failure      400              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Router       /api/contracts/{id}/generate [post]
func (h *ContractHandler) Generate(c *gin.Context) {
	var in service.GenerateContractInput
	if !h.prepareAction(c, &in, &in.ContractActionInput) {
		return
	}
	contract, err := h.contractService.Generate(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// SubmitForApproval godoc
// @Summary      Submit a contract for approval
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Contract ID"
// @Param        request  body      service.SubmitContractInput  true  "Approval provider and reference"
// @Success      200      {object}  response.Response{data=service.ContractResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/contracts/{id}/submit [post]
func (h *ContractHandler) SubmitForApproval(c *gin.Context) {
	var in service.SubmitContractInput
	if !h.prepareAction(c, &in, &in.ContractActionInput) {
		return
	}
	contract, err := h.contractService.SubmitForApproval(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// MarkApproved godoc
// @Summary      Mark a contract approved
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true   "Contract ID"
// @Param        request  body      service.ApproveContractInput  false  "Approved document key"
// @Success      200      {object}  response.Response{data=service.ContractResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/contracts/{id}/approve [post]
func (h *ContractHandler) MarkApproved(c *gin.Context) {
	var in service.ApproveContractInput
	if !h.prepareAction(c, &in, &in.ContractActionInput) {
		return
	}
	contract, err := h.contractService.MarkApproved(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// SendForSign godoc
// @Summary      Send a contract for signature
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Contract ID"
// @Param        request  body      service.SendForSignInput  true  "Signing envelope"
// @Success      200      {object}  response.Response{data=service.ContractResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/contracts/{id}/send-for-sign [post]
func (h *ContractHandler) SendForSign(c *gin.Context) {
	var in service.SendForSignInput
	if !h.prepareAction(c, &in, &in.ContractActionInput) {
		return
	}
	contract, err := h.contractService.SendForSign(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// MarkSigned godoc
// @Summary      Mark a contract signed
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Contract ID"
// @Param        request  body      service.MarkSignedInput  true  "Signed document key"
// @Success      200      {object}  response.Response{data=service.ContractResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/contracts/{id}/sign [post]
func (h *ContractHandler) MarkSigned(c *gin.Context) {
	var in service.MarkSignedInput
	if !h.prepareAction(c, &in, &in.ContractActionInput) {
		return
	}
	contract, err := h.contractService.MarkSigned(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// Activate godoc
// @Summary      Activate a signed contract
// @Description  Activates the contract and locks its budget in the same transaction
// @Tags         contracts
// @Security     BearerAuth
// @Produce      json
// @Param        id               path      string  true   "Contract ID"
// @Param        Idempotency-Key  header    string  false  "Idempotency key"
// @Success      200              {object}  response.Response{data=service.ContractResponse}
// @Failure      409              {object}  response.Response
// @Router       /api/contracts/{id}/activate [post]
func (h *ContractHandler) Activate(c *gin.Context) {
	var in service.ContractActionInput
	if !h.prepareAction(c, &in, &in) {
		return
	}
	contract, err := h.contractService.Activate(c.Request.Context(), in)
	h.respond(c, contract, err)
}

// Cancel godoc
// @Summary      Cancel a contract
// @Description  Allowed until the contract is signed
// @Tags         contracts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true   "Contract ID"
// @Param        request  body      service.CancelContractInput  false  "Reason"
// @Success      200      {object}  response.Response{data=service.ContractResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/contracts/{id}/cancel [post]
func (h *ContractHandler) Cancel(c *gin.Context) {
	var in service.CancelContractInput
	if !h.prepareAction(c, &in, &in.ContractActionInput) {
		return
	}
	contract, err := h.contractService.Cancel(c.Request.Context(), in)
	h.respond(c, contract, err)
}
