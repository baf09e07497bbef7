package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/service"
	"github.com/skillmarket/marketplace-backend/internal/validation"
)

// ProfileHandler управляет профилем текущего пользователя.
type ProfileHandler struct {
	auth *service.AuthService
}

// NewProfileHandler создаёт хэндлер.
func NewProfileHandler(auth *service.AuthService) *ProfileHandler {
	return &ProfileHandler{auth: auth}
}

// GetMe обрабатывает GET /profile.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	profile, err := h.auth.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMe обрабатывает PUT /profile.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateBio(req.Bio); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	profile, err := h.auth.UpdateProfile(c.Request.Context(), &models.Profile{
		UserID:         userID,
		DisplayName:    req.DisplayName,
		Bio:            req.Bio,
		GatewayAccount: req.GatewayAccount,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
