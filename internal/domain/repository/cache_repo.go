package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем JSON-снимков:
// сквозной кеш комнат, последовательностей вопросов и готовых результатов.
type CacheRepository interface {
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
}
