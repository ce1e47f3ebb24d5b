package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/battle-api/internal/domain/entity"
	"github.com/yourusername/battle-api/internal/domain/repository"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
)

// BattleRoomRepo реализует repository.BattleRoomRepository.
//
// Все процедуры-переходы (Join/Start/Leave/Advance) выполняются в одной
// транзакции с SELECT ... FOR UPDATE по строке комнаты: это и есть
// "атомарные удалённые процедуры" контракта хранилища. Клиенты никогда
// не пишут в разделяемые поля комнаты напрямую.
type BattleRoomRepo struct {
	db *gorm.DB
}

// NewBattleRoomRepo создает новый репозиторий комнат
func NewBattleRoomRepo(db *gorm.DB) *BattleRoomRepo {
	return &BattleRoomRepo{db: db}
}

// Create вставляет новую комнату. При нарушении уникальности кода комнаты
// возвращает repository.ErrRoomCodeTaken, чтобы вызывающий перегенерировал код.
func (r *BattleRoomRepo) Create(ctx context.Context, room *entity.BattleRoom) error {
	err := r.db.WithContext(ctx).Create(room).Error
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // 23505 - unique_violation
			return repository.ErrRoomCodeTaken
		}
		return err
	}
	return nil
}

// GetByID возвращает комнату по внутреннему идентификатору
func (r *BattleRoomRepo) GetByID(ctx context.Context, id string) (*entity.BattleRoom, error) {
	var room entity.BattleRoom
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewBattle(apperrors.CodeRoomNotFound, "room not found")
		}
		return nil, err
	}
	return &room, nil
}

// joinPrecondition решает, может ли гость занять место в комнате.
// Порядок проверок: истечение TTL побеждает статус (на протухший код всегда
// отвечаем ROOM_EXPIRED), затем статус. ROOM_FULL получает только проигравший
// конкурентного join (комната уже ready); стартовавшая или завершённая
// комната отвечает ROOM_ALREADY_STARTED независимо от занятости места.
func joinPrecondition(room *entity.BattleRoom, now time.Time) error {
	if room.IsExpired(now) {
		return apperrors.NewBattle(apperrors.CodeRoomExpired, "room has expired")
	}
	switch room.Status {
	case entity.RoomStatusWaiting:
		if room.GuestUserID != nil {
			return apperrors.NewBattle(apperrors.CodeRoomFull, "room is full")
		}
		return nil
	case entity.RoomStatusReady:
		return apperrors.NewBattle(apperrors.CodeRoomFull, "room is full")
	default:
		return apperrors.NewBattle(apperrors.CodeRoomAlreadyStarted, "room has already started")
	}
}

// Join атомарно сажает гостя: из двух конкурирующих вызовов строку комнаты
// первым блокирует один, второй после разблокировки видит комнату ready
// и получает ROOM_FULL.
func (r *BattleRoomRepo) Join(ctx context.Context, roomCode, guestUserID, guestSessionID string) (*entity.BattleRoom, error) {
	var room entity.BattleRoom
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_code = ?", roomCode).
			First(&room).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewBattle(apperrors.CodeRoomNotFound, "room not found")
			}
			return err
		}

		if err := joinPrecondition(&room, time.Now()); err != nil {
			return err
		}

		room.GuestUserID = &guestUserID
		room.GuestSessionID = &guestSessionID
		room.Status = entity.RoomStatusReady

		return tx.Model(&entity.BattleRoom{}).
			Where("id = ?", room.ID).
			Updates(map[string]interface{}{
				"guest_user_id":    guestUserID,
				"guest_session_id": guestSessionID,
				"status":           entity.RoomStatusReady,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Start переводит ready → playing. Разрешён только записанному хосту.
func (r *BattleRoomRepo) Start(ctx context.Context, roomID, hostUserID string) (*entity.BattleRoom, error) {
	var room entity.BattleRoom
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).
			First(&room).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewBattle(apperrors.CodeRoomNotFound, "room not found")
			}
			return err
		}

		if !room.IsHost(hostUserID) {
			return apperrors.NewBattle(apperrors.CodeUnauthorized, "only the host may start the game")
		}
		if room.Status == entity.RoomStatusWaiting {
			return apperrors.NewBattle(apperrors.CodeRoomNotReady, "room has no guest yet")
		}
		if room.Status != entity.RoomStatusReady {
			return apperrors.NewBattle(apperrors.CodeInvalidState, "room is not in a startable state")
		}

		now := time.Now()
		room.Status = entity.RoomStatusPlaying
		room.StartedAt = &now

		return tx.Model(&entity.BattleRoom{}).
			Where("id = ?", room.ID).
			Updates(map[string]interface{}{
				"status":     entity.RoomStatusPlaying,
				"started_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Leave обрабатывает выход участника. Терминальные комнаты не трогаем:
// ни один переход не покидает finished/abandoned.
func (r *BattleRoomRepo) Leave(ctx context.Context, roomID, userID string) (*entity.BattleRoom, error) {
	var room entity.BattleRoom
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).
			First(&room).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewBattle(apperrors.CodeRoomNotFound, "room not found")
			}
			return err
		}

		if !room.IsParticipant(userID) {
			return apperrors.NewBattle(apperrors.CodeUnauthorized, "user is not a participant of this room")
		}

		if room.IsTerminal() {
			return nil
		}

		now := time.Now()

		// Выход хоста хоронит комнату из любого нетерминального статуса
		if room.IsHost(userID) {
			room.Status = entity.RoomStatusAbandoned
			room.FinishedAt = &now
			return tx.Model(&entity.BattleRoom{}).
				Where("id = ?", room.ID).
				Updates(map[string]interface{}{
					"status":      entity.RoomStatusAbandoned,
					"finished_at": now,
				}).Error
		}

		// Выход гостя: во время игры — abandoned, до игры — комната
		// возвращается в waiting с очисткой полей гостя
		if room.Status == entity.RoomStatusPlaying {
			room.Status = entity.RoomStatusAbandoned
			room.FinishedAt = &now
			return tx.Model(&entity.BattleRoom{}).
				Where("id = ?", room.ID).
				Updates(map[string]interface{}{
					"status":      entity.RoomStatusAbandoned,
					"finished_at": now,
				}).Error
		}

		room.GuestUserID = nil
		room.GuestSessionID = nil
		room.Status = entity.RoomStatusWaiting
		return tx.Model(&entity.BattleRoom{}).
			Where("id = ?", room.ID).
			Updates(map[string]interface{}{
				"guest_user_id":    nil,
				"guest_session_id": nil,
				"status":           entity.RoomStatusWaiting,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// advanceRoom применяет закрытие текущего вопроса к комнате в памяти:
// начисляет очки и двигает индекс, если в answers (записи ответов на текущий
// индекс) есть записи ОБОИХ игроков, иначе возвращает false и комнату не
// трогает. При достижении конца последовательности переводит комнату в
// finished и фиксирует FinishedAt.
func advanceRoom(room *entity.BattleRoom, answers []entity.BattleAnswer, now time.Time) bool {
	if room.Status != entity.RoomStatusPlaying {
		return false
	}

	hostAnswered, guestAnswered := false, false
	hostCorrect, guestCorrect := false, false
	for _, a := range answers {
		switch {
		case a.PlayerUserID == room.HostUserID:
			hostAnswered = true
			hostCorrect = a.IsCorrect
		case room.GuestUserID != nil && a.PlayerUserID == *room.GuestUserID:
			guestAnswered = true
			guestCorrect = a.IsCorrect
		}
	}

	// Продвигаемся только по полностью отвеченному вопросу
	if !hostAnswered || !guestAnswered {
		return false
	}

	if hostCorrect {
		room.HostScore++
	}
	if guestCorrect {
		room.GuestScore++
	}
	room.CurrentQuestionIndex++

	if room.CurrentQuestionIndex >= room.TotalQuestions() {
		room.Status = entity.RoomStatusFinished
		room.FinishedAt = &now
	}

	return true
}

// Advance закрывает текущий вопрос. Идемпотентность по индексу достигается
// тем, что очки начисляются только когда ПО ОБОИМ игрокам есть записи ответа
// на текущий индекс: после успешного advance индекс уже указывает на вопрос
// без ответов, и повторный вызов ничего не меняет.
func (r *BattleRoomRepo) Advance(ctx context.Context, roomID string) (*entity.BattleRoom, error) {
	var room entity.BattleRoom
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).
			First(&room).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewBattle(apperrors.CodeRoomNotFound, "room not found")
			}
			return err
		}

		// Счёт заморожен вне playing: advance после finished/abandoned — no-op
		if room.Status != entity.RoomStatusPlaying {
			return nil
		}

		var answers []entity.BattleAnswer
		if err := tx.Where("room_id = ? AND question_index = ?", room.ID, room.CurrentQuestionIndex).
			Find(&answers).Error; err != nil {
			return err
		}

		if !advanceRoom(&room, answers, time.Now()) {
			return nil
		}

		updates := map[string]interface{}{
			"host_score":             room.HostScore,
			"guest_score":            room.GuestScore,
			"current_question_index": room.CurrentQuestionIndex,
		}
		if room.Status == entity.RoomStatusFinished {
			updates["status"] = entity.RoomStatusFinished
			updates["finished_at"] = *room.FinishedAt
		}

		return tx.Model(&entity.BattleRoom{}).
			Where("id = ?", room.ID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ExpireWaiting переводит протухшие комнаты waiting в abandoned.
// Внешний reaper вызывает это периодически.
func (r *BattleRoomRepo) ExpireWaiting(ctx context.Context, now time.Time) ([]entity.BattleRoom, error) {
	var expired []entity.BattleRoom
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND expires_at < ?", entity.RoomStatusWaiting, now).
			Find(&expired).Error
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for i := range expired {
			ids = append(ids, expired[i].ID)
			expired[i].Status = entity.RoomStatusAbandoned
			finishedAt := now
			expired[i].FinishedAt = &finishedAt
		}

		return tx.Model(&entity.BattleRoom{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":      entity.RoomStatusAbandoned,
				"finished_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
