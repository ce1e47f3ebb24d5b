package repository

import (
	"context"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// BattleAnswerRepository определяет методы для работы с ответами дуэли
type BattleAnswerRepository interface {
	// Upsert записывает ответ по ключу (room_id, player_user_id, question_index).
	// Повторная запись для того же ключа перезаписывает предыдущую.
	Upsert(ctx context.Context, answer *entity.BattleAnswer) error

	// GetByQuestion возвращает ответы обоих игроков на вопрос с данным индексом
	GetByQuestion(ctx context.Context, roomID string, questionIndex int) ([]entity.BattleAnswer, error)

	// GetByRoom возвращает все ответы комнаты, упорядоченные по индексу вопроса
	GetByRoom(ctx context.Context, roomID string) ([]entity.BattleAnswer, error)

	// GetByPlayer возвращает все ответы одного игрока в комнате
	GetByPlayer(ctx context.Context, roomID, playerUserID string) ([]entity.BattleAnswer, error)
}
