package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/models"
)

// SettingsRepository работает с единственной строкой таблицы platform_settings.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository создаёт экземпляр репозитория.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает текущие настройки платформы. Строка создаётся миграцией,
// поэтому её отсутствие — ошибка конфигурации, а не обычный not found.
func (r *SettingsRepository) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var settings models.PlatformSettings
	if err := r.db.GetContext(ctx, &settings, `SELECT * FROM platform_settings WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("settings repository: get %w", err)
	}

	return &settings, nil
}

// Update изменяет комиссию и лимит доработок. Затрагивает только заказы,
// созданные после изменения: существующие держат снапшот на строке заказа.
func (r *SettingsRepository) Update(ctx context.Context, commissionRate float64, maxRevisions int) (*models.PlatformSettings, error) {
	query := `
		UPDATE platform_settings
		SET commission_rate = $1, max_revisions = $2, updated_at = NOW()
		WHERE id = 1
		RETURNING *
	`

	var settings models.PlatformSettings
	if err := r.db.GetContext(ctx, &settings, query, commissionRate, maxRevisions); err != nil {
		return nil, fmt.Errorf("settings repository: update %w", err)
	}

	return &settings, nil
}
