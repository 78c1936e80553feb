package handler

import (
	"net/http"

	"grantsbackend/internal/middleware"
	"grantsbackend/internal/model"
	"grantsbackend/internal/service"
	"grantsbackend/pkg/response"

	"github.com/gin-gonic/gin"
)

type TemplateHandler struct {
	templateService service.TemplateService
}

func NewTemplateHandler(templateService service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

func (h *TemplateHandler) RegisterRoutes(router *gin.RouterGroup) {
	templates := router.Group("/api/templates")
	{
		templates.POST("", middleware.RequirePermission(model.PermCatalogWrite), h.CreateTemplate)
		templates.GET("/:id", middleware.RequirePermission(model.PermCatalogRead), h.GetTemplate)
	}
}

// CreateTemplate stores a BUDGET or CONTRACT template
// @Summary      Create template
// @Description  BUDGET templates carry default lines that seed new budgets
// @Tags         templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.CreateTemplateRequest  true  "Template"
// @Success      201      {object}  response.Response{data=service.TemplateResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req service.CreateTemplateRequest
	if !bindJSON(c, &req, false) {
		return
	}

	tmpl, err := h.templateService.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, tmpl))
}

// GetTemplate
// @Summary      Get template
// @Tags         templates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Template ID"
// @Success      200  {object}  response.Response{data=service.TemplateResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.templateService.GetTemplate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tmpl))
}
