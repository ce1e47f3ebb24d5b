package entity

import (
	"time"
)

// Question представляет вопрос банка: слово и его чтение хираганой.
// Банк разбит по уровням сложности {C, B, A, S}; комната при создании
// выбирает из пула своей сложности ровно QuestionsPerBattle вопросов.
type Question struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	Word       string    `gorm:"size:100;not null" json:"word"`
	Reading    string    `gorm:"size:100;not null" json:"reading"` // Чтение хираганой — скрывать от клиента до ответа
	Difficulty string    `gorm:"size:1;not null;index" json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// IsCorrectReading проверяет, совпадает ли ответ с чтением слова
func (q *Question) IsCorrectReading(answer string) bool {
	return answer == q.Reading
}
