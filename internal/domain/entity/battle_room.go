package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Статусы комнаты. Терминальные статусы (finished, abandoned) не покидаются.
const (
	RoomStatusWaiting   = "waiting"
	RoomStatusReady     = "ready"
	RoomStatusPlaying   = "playing"
	RoomStatusFinished  = "finished"
	RoomStatusAbandoned = "abandoned"
)

// Уровни сложности вопросов. Фиксируются при создании комнаты
// и действуют для обоих игроков.
const (
	DifficultyC = "C"
	DifficultyB = "B"
	DifficultyA = "A"
	DifficultyS = "S"
)

// QuestionsPerBattle — фиксированная длина последовательности вопросов комнаты
const QuestionsPerBattle = 10

// RoomCodeLength — длина человекочитаемого кода комнаты
const RoomCodeLength = 6

// IsValidDifficulty проверяет, является ли строка допустимым уровнем сложности
func IsValidDifficulty(d string) bool {
	switch d {
	case DifficultyC, DifficultyB, DifficultyA, DifficultyS:
		return true
	}
	return false
}

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	// Обработка NULL значений из базы данных
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	// Обработка пустого массива байтов
	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
// Используется GORM для записи StringArray в JSONB в базе
func (o StringArray) Value() (driver.Value, error) {
	if o == nil || len(o) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// BattleRoom представляет комнату для дуэли двух игроков.
// Поля, которые меняют оба клиента (status, current_question_index, host_score,
// guest_score), изменяются ТОЛЬКО через атомарные методы репозитория — прямое
// обновление этих полей клиентским кодом запрещено (гонка lost update).
type BattleRoom struct {
	ID                   string      `gorm:"type:uuid;primaryKey" json:"id"`
	RoomCode             string      `gorm:"size:6;not null;uniqueIndex" json:"room_code"`
	Difficulty           string      `gorm:"size:1;not null" json:"difficulty"`
	HostUserID           string      `gorm:"not null;index" json:"host_user_id"`
	HostSessionID        string      `gorm:"not null" json:"host_session_id"`
	GuestUserID          *string     `json:"guest_user_id"`
	GuestSessionID       *string     `json:"guest_session_id"`
	Status               string      `gorm:"size:16;not null;default:waiting" json:"status"`
	CurrentQuestionIndex int         `gorm:"not null;default:0" json:"current_question_index"`
	QuestionIDs          StringArray `gorm:"type:jsonb;not null" json:"question_ids"`
	HostScore            int         `gorm:"not null;default:0" json:"host_score"`
	GuestScore           int         `gorm:"not null;default:0" json:"guest_score"`
	CreatedAt            time.Time   `json:"created_at"`
	ExpiresAt            time.Time   `gorm:"not null" json:"expires_at"`
	StartedAt            *time.Time  `json:"started_at"`
	FinishedAt           *time.Time  `json:"finished_at"`
}

// TableName определяет имя таблицы для GORM
func (BattleRoom) TableName() string {
	return "battle_rooms"
}

// IsTerminal сообщает, находится ли комната в терминальном статусе
func (r *BattleRoom) IsTerminal() bool {
	return r.Status == RoomStatusFinished || r.Status == RoomStatusAbandoned
}

// IsExpired проверяет, истёк ли TTL зала ожидания.
// ExpiresAt имеет смысл только в статусе waiting, но проверка по времени
// выполняется безусловно (Join отвечает ROOM_EXPIRED независимо от статуса).
func (r *BattleRoom) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsHost проверяет, является ли пользователь хостом комнаты
func (r *BattleRoom) IsHost(userID string) bool {
	return r.HostUserID == userID
}

// IsGuest проверяет, является ли пользователь гостем комнаты
func (r *BattleRoom) IsGuest(userID string) bool {
	return r.GuestUserID != nil && *r.GuestUserID == userID
}

// IsParticipant проверяет, участвует ли пользователь в комнате
func (r *BattleRoom) IsParticipant(userID string) bool {
	return r.IsHost(userID) || r.IsGuest(userID)
}

// TotalQuestions возвращает длину последовательности вопросов
func (r *BattleRoom) TotalQuestions() int {
	return len(r.QuestionIDs)
}

// CurrentQuestionID возвращает id текущего вопроса и false, если индекс
// уже за концом последовательности (комната завершена)
func (r *BattleRoom) CurrentQuestionID() (string, bool) {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.QuestionIDs) {
		return "", false
	}
	return r.QuestionIDs[r.CurrentQuestionIndex], true
}

// Winner определяет победителя по счёту: host, guest или draw
func (r *BattleRoom) Winner() string {
	if r.HostScore > r.GuestScore {
		return "host"
	}
	if r.GuestScore > r.HostScore {
		return "guest"
	}
	return "draw"
}
