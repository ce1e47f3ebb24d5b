package repository

import (
	"context"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// QuestionRepository определяет методы для работы с банком вопросов
type QuestionRepository interface {
	Create(ctx context.Context, question *entity.Question) error
	CreateBatch(ctx context.Context, questions []entity.Question) error
	GetByID(ctx context.Context, id string) (*entity.Question, error)

	// GetByIDs возвращает вопросы по списку id, сохраняя порядок списка
	GetByIDs(ctx context.Context, ids []string) ([]entity.Question, error)

	// GetRandomByDifficulty возвращает limit случайных вопросов заданной
	// сложности (выборка без повторов)
	GetRandomByDifficulty(ctx context.Context, difficulty string, limit int) ([]entity.Question, error)

	// CountByDifficulty возвращает размер пула вопросов заданной сложности
	CountByDifficulty(ctx context.Context, difficulty string) (int64, error)
}
