package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/battle-api/internal/domain/entity"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
)

// QuestionRepo реализует repository.QuestionRepository
type QuestionRepo struct {
	db *gorm.DB
}

// NewQuestionRepo создает новый репозиторий вопросов
func NewQuestionRepo(db *gorm.DB) *QuestionRepo {
	return &QuestionRepo{db: db}
}

// Create создает новый вопрос
func (r *QuestionRepo) Create(ctx context.Context, question *entity.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

// CreateBatch создает пакет вопросов
func (r *QuestionRepo) CreateBatch(ctx context.Context, questions []entity.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Устанавливаем кодировку UTF-8 внутри транзакции
		if err := tx.Exec("SET CLIENT_ENCODING TO 'UTF8'").Error; err != nil {
			return err
		}
		return tx.Create(&questions).Error
	})
}

// GetByID возвращает вопрос по ID
func (r *QuestionRepo) GetByID(ctx context.Context, id string) (*entity.Question, error) {
	var question entity.Question
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &question, nil
}

// GetByIDs возвращает вопросы по списку id, сохраняя порядок списка.
// Отсутствующие id молча пропускаются, полноту проверяет вызывающий.
func (r *QuestionRepo) GetByIDs(ctx context.Context, ids []string) ([]entity.Question, error) {
	if len(ids) == 0 {
		return []entity.Question{}, nil
	}
	var questions []entity.Question
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error
	if err != nil {
		return nil, err
	}

	// БД не гарантирует порядок IN-выборки, восстанавливаем порядок списка
	byID := make(map[string]entity.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]entity.Question, 0, len(questions))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// GetRandomByDifficulty возвращает случайные вопросы заданной сложности.
// ORDER BY RANDOM() допустим: пул вопросов одного уровня невелик,
// а выборка происходит один раз при создании комнаты.
func (r *QuestionRepo) GetRandomByDifficulty(ctx context.Context, difficulty string, limit int) ([]entity.Question, error) {
	var questions []entity.Question
	err := r.db.WithContext(ctx).
		Where("difficulty = ?", difficulty).
		Order("RANDOM()").
		Limit(limit).
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// CountByDifficulty возвращает количество вопросов заданной сложности
func (r *QuestionRepo) CountByDifficulty(ctx context.Context, difficulty string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Question{}).
		Where("difficulty = ?", difficulty).
		Count(&count).Error
	return count, err
}
