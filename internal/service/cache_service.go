package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheService — in-memory кэш с TTL. Используется каталогом для горячих
// страниц списка услуг и настроек платформы.
type CacheService struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// NewCacheService создаёт кэш и запускает фоновую очистку.
func NewCacheService() *CacheService {
	cs := &CacheService{
		cache: make(map[string]*cacheEntry),
	}

	go cs.cleanup()

	return cs
}

// Get возвращает значение из кэша.
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entry, exists := cs.cache[key]
	if !exists {
		return nil, false
	}

	// Просроченные записи убирает cleanup, здесь только пропускаем.
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}

	return entry.data, true
}

// Set сохраняет значение с заданным TTL.
func (cs *CacheService) Set(key string, value interface{}, ttl time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.cache[key] = &cacheEntry{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete удаляет ключ.
func (cs *CacheService) Delete(key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.cache, key)
}

// InvalidateByPrefix удаляет все ключи с данным префиксом.
func (cs *CacheService) InvalidateByPrefix(prefix string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for key := range cs.cache {
		if strings.HasPrefix(key, prefix) {
			delete(cs.cache, key)
		}
	}
}

// cleanup периодически убирает просроченные записи.
func (cs *CacheService) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cs.mu.Lock()
		now := time.Now()
		for key, entry := range cs.cache {
			if now.After(entry.expiresAt) {
				delete(cs.cache, key)
			}
		}
		cs.mu.Unlock()
	}
}

// Ключи кэша каталога.
func SettingsCacheKey() string {
	return "settings"
}

func CatalogPageCacheKey(limit, offset int) string {
	return "catalog:" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

func StudentServicesCacheKey(studentID uuid.UUID, limit, offset int) string {
	return "student_services:" + studentID.String() + ":" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

// GetOrSet возвращает значение из кэша либо вычисляет и сохраняет его.
func (cs *CacheService) GetOrSet(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fn func() (interface{}, error),
) (interface{}, error) {
	if value, found := cs.Get(key); found {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}

	cs.Set(key, value, ttl)

	return value, nil
}
