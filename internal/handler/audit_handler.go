package handler

import (
	"net/http"

	"grantsbackend/internal/middleware"
	"grantsbackend/internal/model"
	"grantsbackend/internal/service"
	"grantsbackend/pkg/pagination"
	"grantsbackend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequirePermission(model.PermAuditRead))
	{
		group.GET("", h.GetAuditLogs)
		group.GET("/:entityType/:entityId", h.GetEntityTrail)
	}
}

// GetAuditLogs godoc
// @Summary      Get audit logs
// @Description  Paginated audit rows, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Items per page (default 20)"
// @Param        entity_type  query     string  false  "BUDGET or CONTRACT"
// @Param        action       query     string  false  "Audit action, e.g. BUDGET_SSOT_STATUS_CHANGED"
// @Success      200          {object}  response.Response{data=response.Page{items=[]service.AuditLogResponse}}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), service.AuditFilter{
		EntityType: c.Query("entity_type"),
		Action:     c.Query("action"),
		Page:       params.Page,
		Limit:      params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items: logs,
		Total: total,
		Page:  params.Page,
		Limit: params.Limit,
	}))
}

// GetEntityTrail godoc
// @Summary      Get the audit trail of one entity
// @Description  Every audit row of the entity, oldest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entityType  path      string  true  "BUDGET or CONTRACT"
// @Param        entityId    path      string  true  "Entity ID"
// @Success      200         {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /api/audit-logs/{entityType}/{entityId} [get]
func (h *AuditHandler) GetEntityTrail(c *gin.Context) {
	trail, err := h.auditService.GetEntityTrail(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, trail))
}
