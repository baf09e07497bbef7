package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/pkg/apperror"
	"github.com/skillmarket/marketplace-backend/internal/service"
	"github.com/skillmarket/marketplace-backend/internal/validation"
)

// ServiceHandler управляет каталогом услуг.
type ServiceHandler struct {
	catalog *service.CatalogService
}

// NewServiceHandler создаёт хэндлер.
func NewServiceHandler(catalog *service.CatalogService) *ServiceHandler {
	return &ServiceHandler{catalog: catalog}
}

// CreateService обрабатывает POST /services.
func (h *ServiceHandler) CreateService(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validateServiceRequest(req.Title, req.Description, req.Price, req.DeliveryDays); err != nil {
		c.Error(err)
		return
	}

	svc, err := h.catalog.CreateService(c.Request.Context(), service.ServiceInput{
		StudentID:    userID,
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		DeliveryDays: req.DeliveryDays,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, svc)
}

// UpdateService обрабатывает PUT /services/:id.
func (h *ServiceHandler) UpdateService(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	serviceID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validateServiceRequest(req.Title, req.Description, req.Price, req.DeliveryDays); err != nil {
		c.Error(err)
		return
	}

	svc, err := h.catalog.UpdateService(c.Request.Context(), serviceID, service.ServiceInput{
		StudentID:    userID,
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		DeliveryDays: req.DeliveryDays,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, svc)
}

// PauseService обрабатывает POST /services/:id/pause.
func (h *ServiceHandler) PauseService(c *gin.Context) {
	h.setStatus(c, h.catalog.PauseService, "услуга снята с публикации")
}

// ActivateService обрабатывает POST /services/:id/activate.
func (h *ServiceHandler) ActivateService(c *gin.Context) {
	h.setStatus(c, h.catalog.ActivateService, "услуга опубликована")
}

// GetService обрабатывает GET /services/:id.
func (h *ServiceHandler) GetService(c *gin.Context) {
	serviceID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	svc, err := h.catalog.GetService(c.Request.Context(), serviceID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, svc)
}

// ListServices обрабатывает GET /services — публичный каталог активных услуг.
func (h *ServiceHandler) ListServices(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	services, err := h.catalog.ListActiveServices(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"services": services})
}

// ListMyServices обрабатывает GET /services/my.
func (h *ServiceHandler) ListMyServices(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	services, err := h.catalog.ListMyServices(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"services": services})
}

func (h *ServiceHandler) setStatus(c *gin.Context, op func(ctx context.Context, serviceID, studentID uuid.UUID) error, message string) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	serviceID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := op(c.Request.Context(), serviceID, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// validateServiceRequest собирает ошибки всех полей в одну ошибку валидации,
// чтобы клиент получил карту поле -> сообщение, а не первую попавшуюся.
func validateServiceRequest(title, description string, price float64, deliveryDays int) error {
	fields := map[string]string{}
	if err := validation.ValidateServiceTitle(title); err != nil {
		fields["title"] = err.Error()
	}
	if err := validation.ValidateServiceDescription(description); err != nil {
		fields["description"] = err.Error()
	}
	if err := validation.ValidatePrice(price); err != nil {
		fields["price"] = err.Error()
	}
	if err := validation.ValidateDeliveryDays(deliveryDays); err != nil {
		fields["delivery_days"] = err.Error()
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}
	return nil
}
