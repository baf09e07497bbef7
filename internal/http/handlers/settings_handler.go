package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

// SettingsHandler управляет глобальными настройками платформы.
type SettingsHandler struct {
	catalog *service.CatalogService
}

// NewSettingsHandler создаёт хэндлер.
func NewSettingsHandler(catalog *service.CatalogService) *SettingsHandler {
	return &SettingsHandler{catalog: catalog}
}

// GetSettings обрабатывает GET /admin/settings.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.catalog.GetSettings(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings обрабатывает PUT /admin/settings.
// Новые значения действуют только на заказы, созданные после изменения.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	settings, err := h.catalog.UpdateSettings(c.Request.Context(), req.CommissionRate, req.MaxRevisions)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, settings)
}
