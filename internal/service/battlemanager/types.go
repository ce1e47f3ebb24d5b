package battlemanager

import (
	"context"
	"time"

	"github.com/yourusername/battle-api/internal/domain/entity"
	"github.com/yourusername/battle-api/internal/realtime"
)

// Constants for default values
const (
	DefaultQuestionTimeBudgetMs = 10000 // Бюджет времени на вопрос в мс
	DefaultRoomTTLMinutes       = 10    // TTL зала ожидания в минутах
)

// Config содержит настройки для всех компонентов боевого режима
type Config struct {
	// Тайминги раунда
	QuestionTimeBudgetMs int64         // Бюджет времени на вопрос в мс
	TickInterval         time.Duration // Интервал тика обратного отсчета
	OpponentPollInterval time.Duration // Интервал опроса таблицы ответов соперника
	SettleDelay          time.Duration // Пауза после двух ответов перед продвижением

	// Настройки ошибок
	ErrorDisplayTime time.Duration // Через сколько автоматически очищать ошибку раунда

	// Настройки зала ожидания
	RoomTTLMinutes int           // TTL комнаты в статусе waiting
	ReaperInterval time.Duration // Период обхода просроченных комнат
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		QuestionTimeBudgetMs: DefaultQuestionTimeBudgetMs,
		TickInterval:         100 * time.Millisecond,
		OpponentPollInterval: 500 * time.Millisecond,
		SettleDelay:          2 * time.Second,
		ErrorDisplayTime:     5 * time.Second,
		RoomTTLMinutes:       DefaultRoomTTLMinutes,
		ReaperInterval:       30 * time.Second,
	}
}

// QuestionTimeBudget возвращает бюджет времени на вопрос как Duration
func (c *Config) QuestionTimeBudget() time.Duration {
	return time.Duration(c.QuestionTimeBudgetMs) * time.Millisecond
}

// RoomTTL возвращает TTL зала ожидания как Duration
func (c *Config) RoomTTL() time.Duration {
	return time.Duration(c.RoomTTLMinutes) * time.Minute
}

// RoomCoordinator определяет интерфейс для методов сервиса комнат,
// необходимых контроллеру раунда и жнецу просроченных комнат.
type RoomCoordinator interface {
	GetRoom(ctx context.Context, roomID string) (*entity.BattleRoom, error)
	AdvanceRoom(ctx context.Context, roomID string) (*entity.BattleRoom, error)
	ExpireWaitingRooms(ctx context.Context, now time.Time) ([]entity.BattleRoom, error)
}

// AnswerRecorder определяет интерфейс для методов сервиса ответов,
// необходимых контроллеру раунда.
type AnswerRecorder interface {
	RecordAnswer(ctx context.Context, roomID, playerUserID, playerSessionID string, questionIndex int, isCorrect bool, answerTimeMs int64) (*entity.BattleAnswer, error)
	GetAnswersByQuestion(ctx context.Context, roomID string, questionIndex int) ([]entity.BattleAnswer, error)
}

// Dependencies содержит зависимости для компонентов боевого режима
type Dependencies struct {
	Rooms   RoomCoordinator
	Answers AnswerRecorder
	Feed    *realtime.ChangeFeed
	Config  *Config
}
