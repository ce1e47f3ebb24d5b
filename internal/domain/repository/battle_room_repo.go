package repository

import (
	"context"
	"time"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// BattleRoomRepository определяет методы для работы с комнатами дуэлей.
//
// Join, Start, Advance и Leave — атомарные процедуры уровня хранилища:
// каждая выполняется в одной транзакции с блокировкой строки комнаты,
// поэтому конкурирующие вызовы двух клиентов не теряют обновления.
// Advance обязан быть идемпотентным по индексу: повторный вызов для уже
// закрытого вопроса не удваивает счёт и не пропускает вопрос.
type BattleRoomRepository interface {
	Create(ctx context.Context, room *entity.BattleRoom) error
	GetByID(ctx context.Context, id string) (*entity.BattleRoom, error)

	// Join атомарно сажает гостя в комнату waiting → ready.
	// Из двух конкурирующих гостей выигрывает ровно один, второй получает ROOM_FULL.
	Join(ctx context.Context, roomCode, guestUserID, guestSessionID string) (*entity.BattleRoom, error)

	// Start переводит ready → playing. Разрешён только хосту.
	Start(ctx context.Context, roomID, hostUserID string) (*entity.BattleRoom, error)

	// Leave обрабатывает выход участника: хост — abandoned из любого
	// нетерминального статуса, гость — waiting (очистка полей гостя) либо
	// abandoned, если игра уже шла.
	Leave(ctx context.Context, roomID, userID string) (*entity.BattleRoom, error)

	// Advance закрывает текущий вопрос: начисляет очки по таблице ответов,
	// двигает индекс и при достижении конца последовательности переводит
	// комнату в finished. Если оба ответа ещё не записаны, возвращает
	// комнату без изменений.
	Advance(ctx context.Context, roomID string) (*entity.BattleRoom, error)

	// ExpireWaiting переводит в abandoned все комнаты waiting с истёкшим TTL
	// и возвращает затронутые комнаты (для публикации в change feed).
	ExpireWaiting(ctx context.Context, now time.Time) ([]entity.BattleRoom, error)
}
