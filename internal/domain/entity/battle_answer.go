package entity

import (
	"time"
)

// BattleAnswer представляет ответ игрока на один вопрос дуэли.
// Естественный ключ (room_id, player_user_id, question_index) уникален:
// повторная отправка перезаписывает предыдущую запись (upsert), а не
// дублирует её — это терпит гонку между ручным ответом и авто-ответом
// по таймауту.
type BattleAnswer struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID          string    `gorm:"type:uuid;not null;index;uniqueIndex:idx_battle_answers_room_player_question" json:"room_id"`
	PlayerUserID    string    `gorm:"not null;uniqueIndex:idx_battle_answers_room_player_question" json:"player_user_id"`
	QuestionIndex   int       `gorm:"not null;uniqueIndex:idx_battle_answers_room_player_question" json:"question_index"`
	PlayerSessionID string    `gorm:"not null" json:"player_session_id"`
	QuestionID      string    `gorm:"type:uuid;not null" json:"question_id"` // денормализованная копия для аудита
	IsCorrect       bool      `gorm:"not null" json:"is_correct"`
	AnswerTimeMs    int64     `gorm:"not null" json:"answer_time_ms"`
	AnsweredAt      time.Time `gorm:"not null" json:"answered_at"`
}

// TableName определяет имя таблицы для GORM
func (BattleAnswer) TableName() string {
	return "battle_answers"
}
