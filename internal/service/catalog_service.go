package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillmarket/marketplace-backend/internal/models"
)

var (
	ErrServiceFieldsInvalid = errors.New("service title, description and delivery days are required")
	ErrServicePriceInvalid  = errors.New("service price must be positive")
	ErrSettingsInvalid      = errors.New("commission rate must be within [0, 100] and max revisions non-negative")
)

// ServiceRepository описывает взаимодействие с хранилищем каталога услуг.
type ServiceRepository interface {
	Create(ctx context.Context, service *models.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	Update(ctx context.Context, service *models.Service) error
	SetStatus(ctx context.Context, id uuid.UUID, studentID uuid.UUID, status string) error
	ListByStudent(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]models.Service, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Service, error)
}

// SettingsRepository описывает хранилище настроек платформы.
type SettingsRepository interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
	Update(ctx context.Context, commissionRate float64, maxRevisions int) (*models.PlatformSettings, error)
}

// CatalogService — каталог услуг и настройки платформы.
type CatalogService struct {
	services ServiceRepository
	settings SettingsRepository
	cache    *CacheService
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(services ServiceRepository, settings SettingsRepository) *CatalogService {
	return &CatalogService{services: services, settings: settings}
}

// SetCache подключает кэш каталога. Без кэша сервис ходит в базу напрямую.
func (s *CatalogService) SetCache(cache *CacheService) {
	s.cache = cache
}

func (s *CatalogService) invalidateCatalog() {
	if s.cache != nil {
		s.cache.InvalidateByPrefix("catalog:")
		s.cache.InvalidateByPrefix("student_services:")
	}
}

// ServiceInput описывает входные данные услуги.
type ServiceInput struct {
	StudentID    uuid.UUID
	Title        string
	Description  string
	Price        float64
	DeliveryDays int
}

func validateServiceInput(in ServiceInput) error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" || in.DeliveryDays <= 0 {
		return ErrServiceFieldsInvalid
	}
	if in.Price <= 0 {
		return ErrServicePriceInvalid
	}
	return nil
}

// CreateService публикует новую услугу исполнителя.
func (s *CatalogService) CreateService(ctx context.Context, in ServiceInput) (*models.Service, error) {
	if err := validateServiceInput(in); err != nil {
		return nil, err
	}

	service := &models.Service{
		StudentID:    in.StudentID,
		Title:        in.Title,
		Description:  in.Description,
		Price:        models.Round2(in.Price),
		DeliveryDays: in.DeliveryDays,
		Status:       models.ServiceStatusActive,
	}
	if err := s.services.Create(ctx, service); err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return service, nil
}

// UpdateService изменяет услугу. Новая цена действует только на новые заказы.
func (s *CatalogService) UpdateService(ctx context.Context, serviceID uuid.UUID, in ServiceInput) (*models.Service, error) {
	if err := validateServiceInput(in); err != nil {
		return nil, err
	}

	service := &models.Service{
		ID:           serviceID,
		StudentID:    in.StudentID,
		Title:        in.Title,
		Description:  in.Description,
		Price:        models.Round2(in.Price),
		DeliveryDays: in.DeliveryDays,
	}
	if err := s.services.Update(ctx, service); err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return s.services.GetByID(ctx, serviceID)
}

// PauseService снимает услугу с публикации.
func (s *CatalogService) PauseService(ctx context.Context, serviceID, studentID uuid.UUID) error {
	if err := s.services.SetStatus(ctx, serviceID, studentID, models.ServiceStatusPaused); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// ActivateService возвращает услугу в каталог.
func (s *CatalogService) ActivateService(ctx context.Context, serviceID, studentID uuid.UUID) error {
	if err := s.services.SetStatus(ctx, serviceID, studentID, models.ServiceStatusActive); err != nil {
		return err
	}
	s.invalidateCatalog()
	return nil
}

// GetService возвращает услугу.
func (s *CatalogService) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return s.services.GetByID(ctx, id)
}

// ListActiveServices возвращает каталог активных услуг.
func (s *CatalogService) ListActiveServices(ctx context.Context, limit, offset int) ([]models.Service, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	if s.cache == nil {
		return s.services.ListActive(ctx, limit, offset)
	}

	value, err := s.cache.GetOrSet(ctx, CatalogPageCacheKey(limit, offset), 30*time.Second, func() (interface{}, error) {
		return s.services.ListActive(ctx, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return value.([]models.Service), nil
}

// ListMyServices возвращает услуги исполнителя.
func (s *CatalogService) ListMyServices(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]models.Service, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if s.cache == nil {
		return s.services.ListByStudent(ctx, studentID, limit, offset)
	}

	value, err := s.cache.GetOrSet(ctx, StudentServicesCacheKey(studentID, limit, offset), 30*time.Second, func() (interface{}, error) {
		return s.services.ListByStudent(ctx, studentID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return value.([]models.Service), nil
}

// GetSettings возвращает настройки платформы.
func (s *CatalogService) GetSettings(ctx context.Context) (*models.PlatformSettings, error) {
	if s.cache == nil {
		return s.settings.Get(ctx)
	}

	value, err := s.cache.GetOrSet(ctx, SettingsCacheKey(), time.Minute, func() (interface{}, error) {
		return s.settings.Get(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(*models.PlatformSettings), nil
}

// UpdateSettings изменяет комиссию и лимит доработок. Существующие заказы
// держат снапшот прежних значений.
func (s *CatalogService) UpdateSettings(ctx context.Context, commissionRate float64, maxRevisions int) (*models.PlatformSettings, error) {
	if commissionRate < 0 || commissionRate > 100 || maxRevisions < 0 {
		return nil, ErrSettingsInvalid
	}

	settings, err := s.settings.Update(ctx, commissionRate, maxRevisions)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Delete(SettingsCacheKey())
	}
	return settings, nil
}
