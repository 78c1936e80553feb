package handler

import (
	"net/http"

	"grantsbackend/internal/middleware"
	"grantsbackend/internal/model"
	"grantsbackend/internal/service"
	"grantsbackend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PartnerHandler struct {
	partnerService service.PartnerService
}

func NewPartnerHandler(partnerService service.PartnerService) *PartnerHandler {
	return &PartnerHandler{partnerService: partnerService}
}

func (h *PartnerHandler) RegisterRoutes(router *gin.RouterGroup) {
	partners := router.Group("/api/partners")
	{
		partners.POST("", middleware.RequirePermission(model.PermCatalogWrite), h.CreatePartner)
		partners.GET("/:id", middleware.RequirePermission(model.PermCatalogRead), h.GetPartner)
	}
}

// CreatePartner registers a grantee, donor or vendor
// @Summary      Create partner
// @Tags         partners
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.CreatePartnerRequest  true  "Partner"
// @Success      201      {object}  response.Response{data=service.PartnerResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/partners [post]
func (h *PartnerHandler) CreatePartner(c *gin.Context) {
	var req service.CreatePartnerRequest
	if !bindJSON(c, &req, false) {
		return
	}

	partner, err := h.partnerService.CreatePartner(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, partner))
}

// GetPartner
// @Summary      Get partner
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Partner ID"
// @Success      200  {object}  response.Response{data=service.PartnerResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/partners/{id} [get]
func (h *PartnerHandler) GetPartner(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	partner, err := h.partnerService.GetPartner(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, partner))
}
