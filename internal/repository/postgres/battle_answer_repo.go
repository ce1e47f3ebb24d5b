package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// BattleAnswerRepo реализует repository.BattleAnswerRepository
type BattleAnswerRepo struct {
	db *gorm.DB
}

// NewBattleAnswerRepo создает новый репозиторий ответов
func NewBattleAnswerRepo(db *gorm.DB) *BattleAnswerRepo {
	return &BattleAnswerRepo{db: db}
}

// Upsert записывает ответ игрока. Конфликт по естественному ключу
// (room_id, player_user_id, question_index) перезаписывает предыдущую
// запись целиком — дубликаты клиентской отправки не плодят строк.
func (r *BattleAnswerRepo) Upsert(ctx context.Context, answer *entity.BattleAnswer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "room_id"},
			{Name: "player_user_id"},
			{Name: "question_index"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"player_session_id",
			"question_id",
			"is_correct",
			"answer_time_ms",
			"answered_at",
		}),
	}).Create(answer).Error
}

// GetByQuestion возвращает ответы на вопрос с данным индексом
func (r *BattleAnswerRepo) GetByQuestion(ctx context.Context, roomID string, questionIndex int) ([]entity.BattleAnswer, error) {
	var answers []entity.BattleAnswer
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND question_index = ?", roomID, questionIndex).
		Find(&answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}

// GetByRoom возвращает все ответы комнаты в порядке вопросов
func (r *BattleAnswerRepo) GetByRoom(ctx context.Context, roomID string) ([]entity.BattleAnswer, error) {
	var answers []entity.BattleAnswer
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("question_index").
		Order("answered_at").
		Find(&answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}

// GetByPlayer возвращает все ответы одного игрока в комнате
func (r *BattleAnswerRepo) GetByPlayer(ctx context.Context, roomID, playerUserID string) ([]entity.BattleAnswer, error) {
	var answers []entity.BattleAnswer
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND player_user_id = ?", roomID, playerUserID).
		Order("question_index").
		Find(&answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}
