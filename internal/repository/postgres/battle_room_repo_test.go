package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/battle-api/internal/domain/entity"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
)

// ============================================================================
// Вспомогательные функции
// ============================================================================

// createLockedRoom создаёт комнату в том виде, в каком её видит транзакция
// после SELECT ... FOR UPDATE
func createLockedRoom(status string) *entity.BattleRoom {
	guestID := "guest-user"
	guestSession := "guest-session"
	return &entity.BattleRoom{
		ID:             "room-1",
		RoomCode:       "ABC123",
		Difficulty:     "C",
		HostUserID:     "host-user",
		HostSessionID:  "host-session",
		GuestUserID:    &guestID,
		GuestSessionID: &guestSession,
		Status:         status,
		QuestionIDs:    entity.StringArray{"q1", "q2", "q3"},
		ExpiresAt:      time.Now().Add(10 * time.Minute),
	}
}

func hostAnswer(isCorrect bool) entity.BattleAnswer {
	return entity.BattleAnswer{PlayerUserID: "host-user", IsCorrect: isCorrect}
}

func guestAnswer(isCorrect bool) entity.BattleAnswer {
	return entity.BattleAnswer{PlayerUserID: "guest-user", IsCorrect: isCorrect}
}

// ============================================================================
// Тесты предусловий Join
// ============================================================================

func TestJoinPrecondition_FreeWaitingRoom(t *testing.T) {
	// Arrange
	room := createLockedRoom(entity.RoomStatusWaiting)
	room.GuestUserID = nil
	room.GuestSessionID = nil

	// Act & Assert
	assert.NoError(t, joinPrecondition(room, time.Now()),
		"Свободная комната waiting должна принимать гостя")
}

func TestJoinPrecondition_ExpiredWinsOverStatus(t *testing.T) {
	// Протухший код всегда отвечает ROOM_EXPIRED, в каком бы статусе
	// комната ни была
	statuses := []string{
		entity.RoomStatusWaiting,
		entity.RoomStatusReady,
		entity.RoomStatusPlaying,
		entity.RoomStatusFinished,
		entity.RoomStatusAbandoned,
	}

	for _, status := range statuses {
		t.Run(status, func(t *testing.T) {
			// Arrange
			room := createLockedRoom(status)
			room.ExpiresAt = time.Now().Add(-1 * time.Minute)

			// Act
			err := joinPrecondition(room, time.Now())

			// Assert
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeRoomExpired),
				"Истечение TTL должно побеждать проверку статуса")
		})
	}
}

func TestJoinPrecondition_ReadyRoomIsFull(t *testing.T) {
	// Проигравший конкурентного join видит комнату уже в ready
	room := createLockedRoom(entity.RoomStatusReady)

	// Act
	err := joinPrecondition(room, time.Now())

	// Assert
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeRoomFull),
		"Второй из конкурирующих гостей должен получить ROOM_FULL")
}

func TestJoinPrecondition_StartedRoomRejectsJoin(t *testing.T) {
	// У стартовавшей комнаты место всегда занято, но отвечаем по статусу
	statuses := []string{
		entity.RoomStatusPlaying,
		entity.RoomStatusFinished,
		entity.RoomStatusAbandoned,
	}

	for _, status := range statuses {
		t.Run(status, func(t *testing.T) {
			// Arrange
			room := createLockedRoom(status)

			// Act
			err := joinPrecondition(room, time.Now())

			// Assert
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeRoomAlreadyStarted),
				"Статус не-waiting должен давать ROOM_ALREADY_STARTED, а не ROOM_FULL")
		})
	}
}

// ============================================================================
// Тесты закрытия вопроса (advance)
// ============================================================================

func TestAdvanceRoom_WaitsForBothAnswers(t *testing.T) {
	// Arrange
	room := createLockedRoom(entity.RoomStatusPlaying)
	answers := []entity.BattleAnswer{hostAnswer(true)}

	// Act
	moved := advanceRoom(room, answers, time.Now())

	// Assert
	assert.False(t, moved, "Без ответа второго игрока продвижения быть не должно")
	assert.Equal(t, 0, room.CurrentQuestionIndex)
	assert.Equal(t, 0, room.HostScore, "Очки не начисляются до полного ответа")
	assert.Equal(t, entity.RoomStatusPlaying, room.Status)
}

func TestAdvanceRoom_TalliesAndMovesIndex(t *testing.T) {
	// Arrange
	room := createLockedRoom(entity.RoomStatusPlaying)
	answers := []entity.BattleAnswer{hostAnswer(true), guestAnswer(false)}

	// Act
	moved := advanceRoom(room, answers, time.Now())

	// Assert
	assert.True(t, moved)
	assert.Equal(t, 1, room.HostScore, "Правильный ответ хоста должен дать очко")
	assert.Equal(t, 0, room.GuestScore, "Неправильный ответ гостя очка не даёт")
	assert.Equal(t, 1, room.CurrentQuestionIndex)
	assert.Equal(t, entity.RoomStatusPlaying, room.Status, "Комната продолжает игру")
	assert.Nil(t, room.FinishedAt)
}

func TestAdvanceRoom_IdempotentPerIndex(t *testing.T) {
	// Arrange: первый advance закрывает вопрос 0
	room := createLockedRoom(entity.RoomStatusPlaying)
	require.True(t, advanceRoom(room, []entity.BattleAnswer{hostAnswer(true), guestAnswer(true)}, time.Now()))
	require.Equal(t, 1, room.CurrentQuestionIndex)

	// Act: повторный advance видит вопрос 1 без ответов
	moved := advanceRoom(room, nil, time.Now())

	// Assert
	assert.False(t, moved, "Повторный advance не должен менять комнату")
	assert.Equal(t, 1, room.CurrentQuestionIndex, "Индекс не должен перескакивать вопрос")
	assert.Equal(t, 1, room.HostScore, "Очки не должны удваиваться")
	assert.Equal(t, 1, room.GuestScore)
}

func TestAdvanceRoom_FinishesAtEndOfSequence(t *testing.T) {
	// Arrange: последний вопрос последовательности из трёх
	room := createLockedRoom(entity.RoomStatusPlaying)
	room.CurrentQuestionIndex = 2
	room.HostScore = 2
	room.GuestScore = 1
	now := time.Now()

	// Act
	moved := advanceRoom(room, []entity.BattleAnswer{hostAnswer(false), guestAnswer(true)}, now)

	// Assert
	assert.True(t, moved)
	assert.Equal(t, entity.RoomStatusFinished, room.Status,
		"Индекс за концом последовательности должен завершать комнату")
	assert.Equal(t, room.TotalQuestions(), room.CurrentQuestionIndex)
	require.NotNil(t, room.FinishedAt)
	assert.Equal(t, now, *room.FinishedAt)
	assert.Equal(t, 2, room.HostScore)
	assert.Equal(t, 2, room.GuestScore, "Последний ответ гостя должен войти в счёт")
}

func TestAdvanceRoom_ScoresFrozenAfterFinish(t *testing.T) {
	// Arrange
	room := createLockedRoom(entity.RoomStatusFinished)
	room.CurrentQuestionIndex = 3
	room.HostScore = 2
	room.GuestScore = 1

	// Act
	moved := advanceRoom(room, []entity.BattleAnswer{hostAnswer(true), guestAnswer(true)}, time.Now())

	// Assert
	assert.False(t, moved, "Advance вне playing должен быть no-op")
	assert.Equal(t, 2, room.HostScore, "Счёт завершённой комнаты заморожен")
	assert.Equal(t, 1, room.GuestScore)
	assert.Equal(t, 3, room.CurrentQuestionIndex)
}
