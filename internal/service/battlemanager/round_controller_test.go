package battlemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/battle-api/internal/domain/entity"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
	"github.com/yourusername/battle-api/internal/realtime"
)

// ============================================================================
// Моки для RoundController
// ============================================================================

// MockRoomCoordinator реализует RoomCoordinator
type MockRoomCoordinator struct {
	mock.Mock
}

func (m *MockRoomCoordinator) GetRoom(ctx context.Context, roomID string) (*entity.BattleRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.BattleRoom), args.Error(1)
}

func (m *MockRoomCoordinator) AdvanceRoom(ctx context.Context, roomID string) (*entity.BattleRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.BattleRoom), args.Error(1)
}

func (m *MockRoomCoordinator) ExpireWaitingRooms(ctx context.Context, now time.Time) ([]entity.BattleRoom, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.BattleRoom), args.Error(1)
}

// MockAnswerRecorder реализует AnswerRecorder
type MockAnswerRecorder struct {
	mock.Mock
}

func (m *MockAnswerRecorder) RecordAnswer(ctx context.Context, roomID, playerUserID, playerSessionID string, questionIndex int, isCorrect bool, answerTimeMs int64) (*entity.BattleAnswer, error) {
	args := m.Called(ctx, roomID, playerUserID, playerSessionID, questionIndex, isCorrect, answerTimeMs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.BattleAnswer), args.Error(1)
}

func (m *MockAnswerRecorder) GetAnswersByQuestion(ctx context.Context, roomID string, questionIndex int) ([]entity.BattleAnswer, error) {
	args := m.Called(ctx, roomID, questionIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.BattleAnswer), args.Error(1)
}

// ============================================================================
// Вспомогательные функции
// ============================================================================

// fastTestConfig возвращает конфигурацию с короткими таймингами для тестов
func fastTestConfig() *Config {
	return &Config{
		QuestionTimeBudgetMs: 500,
		TickInterval:         5 * time.Millisecond,
		OpponentPollInterval: 10 * time.Millisecond,
		SettleDelay:          10 * time.Millisecond,
		ErrorDisplayTime:     50 * time.Millisecond,
		RoomTTLMinutes:       DefaultRoomTTLMinutes,
		ReaperInterval:       20 * time.Millisecond,
	}
}

// createTestController создаёт RoundController с моками
func createTestController(config *Config, rooms *MockRoomCoordinator, answers *MockAnswerRecorder) *RoundController {
	return NewRoundController(config, &Dependencies{
		Rooms:   rooms,
		Answers: answers,
		Feed:    realtime.NewChangeFeed(nil),
		Config:  config,
	})
}

// createPlayingRoomForRounds создаёт комнату в статусе playing
func createPlayingRoomForRounds() *entity.BattleRoom {
	guestID := "guest-user"
	guestSession := "guest-session"
	return &entity.BattleRoom{
		ID:             "room-1",
		RoomCode:       "ABC123",
		Difficulty:     entity.DifficultyB,
		HostUserID:     "host-user",
		HostSessionID:  "host-session",
		GuestUserID:    &guestID,
		GuestSessionID: &guestSession,
		Status:         entity.RoomStatusPlaying,
		QuestionIDs:    entity.StringArray{"q1", "q2", "q3"},
	}
}

// ============================================================================
// Тесты для Start и SubmitAnswer
// ============================================================================

func TestRoundController_Start_RequiresPlayingRoom(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)

	room := createPlayingRoomForRounds()
	room.Status = entity.RoomStatusWaiting

	// Act
	err := controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{})

	// Assert
	require.Error(t, err, "Старт раундов вне фазы playing должен отклоняться")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState), "Ошибка должна нести код INVALID_STATE")
	assert.False(t, controller.Running())
}

func TestRoundController_Start_RequiresParticipant(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)

	room := createPlayingRoomForRounds()

	// Act
	err := controller.Start(context.Background(), room, "stranger", "s-session", RoundCallbacks{})

	// Assert
	require.Error(t, err, "Посторонний не должен вести раунды комнаты")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized), "Ошибка должна нести код UNAUTHORIZED")
	assert.False(t, controller.Running())
}

func TestRoundController_SubmitAnswer_NoActiveRound(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)

	// Act
	answer, err := controller.SubmitAnswer(context.Background(), true)

	// Assert
	require.Error(t, err, "Ответ без активного раунда должен отклоняться")
	assert.Nil(t, answer)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func TestRoundController_SubmitAnswer_RecordsOnce(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)
	defer controller.Stop()

	room := createPlayingRoomForRounds()
	recorded := &entity.BattleAnswer{ID: "a1", RoomID: "room-1", PlayerUserID: "host-user", QuestionIndex: 0}
	mockAnswers.On("RecordAnswer", mock.Anything, "room-1", "host-user", "host-session", 0, true, mock.AnythingOfType("int64")).
		Return(recorded, nil)
	// Соперник ещё не ответил, раунд не продвигается
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, "room-1", 0).
		Return([]entity.BattleAnswer{{PlayerUserID: "host-user", QuestionIndex: 0}}, nil)

	require.NoError(t, controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{}))

	// Act
	answer, err := controller.SubmitAnswer(context.Background(), true)
	_, errAgain := controller.SubmitAnswer(context.Background(), true)

	// Assert
	require.NoError(t, err, "Первый ответ должен записываться")
	assert.Equal(t, "a1", answer.ID)
	require.Error(t, errAgain, "Повторный ответ на тот же вопрос должен отклоняться")
	assert.True(t, apperrors.IsCode(errAgain, apperrors.CodeInvalidState))
	mockAnswers.AssertNumberOfCalls(t, "RecordAnswer", 1)

	state := controller.Snapshot()
	assert.True(t, state.Answered, "Снимок должен отражать записанный ответ")
	assert.Equal(t, 0, state.QuestionIndex)
}

// ============================================================================
// Тесты для таймаута и продвижения
// ============================================================================

func TestRoundController_Timeout_RecordsAutoAnswer(t *testing.T) {
	// Arrange
	config := fastTestConfig()
	config.QuestionTimeBudgetMs = 40
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(config, mockRooms, mockAnswers)
	defer controller.Stop()

	room := createPlayingRoomForRounds()
	timeoutCh := make(chan int, 1)

	// Авто-ответ по таймауту: неверный, с полным бюджетом времени
	mockAnswers.On("RecordAnswer", mock.Anything, "room-1", "host-user", "host-session", 0, false, int64(40)).
		Return(&entity.BattleAnswer{ID: "auto", QuestionIndex: 0, AnswerTimeMs: 40}, nil)
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, "room-1", 0).
		Return([]entity.BattleAnswer{{PlayerUserID: "host-user", QuestionIndex: 0}}, nil)

	require.NoError(t, controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{
		OnTimeout: func(questionIndex int) {
			select {
			case timeoutCh <- questionIndex:
			default:
			}
		},
	}))

	// Act / Assert
	select {
	case index := <-timeoutCh:
		assert.Equal(t, 0, index, "Таймаут должен прийти по текущему вопросу")
	case <-time.After(2 * time.Second):
		t.Fatal("Таймаут вопроса не наступил")
	}
	mockAnswers.AssertCalled(t, "RecordAnswer", mock.Anything, "room-1", "host-user", "host-session", 0, false, int64(40))
}

func TestRoundController_Advance_AfterBothAnswered(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)
	defer controller.Stop()

	room := createPlayingRoomForRounds()
	advanced := createPlayingRoomForRounds()
	advanced.CurrentQuestionIndex = 1
	advanceCh := make(chan *entity.BattleRoom, 1)

	mockAnswers.On("RecordAnswer", mock.Anything, "room-1", "host-user", "host-session", 0, true, mock.AnythingOfType("int64")).
		Return(&entity.BattleAnswer{ID: "a1", QuestionIndex: 0}, nil)
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, "room-1", 0).
		Return([]entity.BattleAnswer{
			{PlayerUserID: "host-user", QuestionIndex: 0},
			{PlayerUserID: "guest-user", QuestionIndex: 0},
		}, nil)
	mockRooms.On("AdvanceRoom", mock.Anything, "room-1").Return(advanced, nil)
	// Раунд следующего вопроса может успеть стартовать до остановки контроллера
	mockAnswers.On("RecordAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&entity.BattleAnswer{}, nil).Maybe()
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, "room-1", 1).
		Return([]entity.BattleAnswer{}, nil).Maybe()

	require.NoError(t, controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{
		OnAdvance: func(r *entity.BattleRoom) {
			select {
			case advanceCh <- r:
			default:
			}
		},
	}))

	// Act
	_, err := controller.SubmitAnswer(context.Background(), true)
	require.NoError(t, err)

	// Assert
	select {
	case r := <-advanceCh:
		assert.Equal(t, 1, r.CurrentQuestionIndex, "После продвижения комната должна быть на следующем вопросе")
	case <-time.After(2 * time.Second):
		t.Fatal("Продвижение комнаты не произошло")
	}
	assert.True(t, controller.Running(), "После продвижения контроллер продолжает вести раунды")
}

func TestRoundController_Finish_OnTerminalRoom(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)
	defer controller.Stop()

	room := createPlayingRoomForRounds()
	room.CurrentQuestionIndex = 2
	finished := createPlayingRoomForRounds()
	finished.Status = entity.RoomStatusFinished
	finished.HostScore = 2
	finished.GuestScore = 1
	finishCh := make(chan *entity.BattleRoom, 1)

	mockAnswers.On("RecordAnswer", mock.Anything, "room-1", "host-user", "host-session", 2, false, mock.AnythingOfType("int64")).
		Return(&entity.BattleAnswer{ID: "a3", QuestionIndex: 2}, nil)
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, "room-1", 2).
		Return([]entity.BattleAnswer{
			{PlayerUserID: "host-user", QuestionIndex: 2},
			{PlayerUserID: "guest-user", QuestionIndex: 2},
		}, nil)
	mockRooms.On("AdvanceRoom", mock.Anything, "room-1").Return(finished, nil)

	require.NoError(t, controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{
		OnFinish: func(r *entity.BattleRoom) {
			select {
			case finishCh <- r:
			default:
			}
		},
	}))

	// Act
	_, err := controller.SubmitAnswer(context.Background(), false)
	require.NoError(t, err)

	// Assert
	select {
	case r := <-finishCh:
		assert.Equal(t, entity.RoomStatusFinished, r.Status, "Завершение должно прийти с терминальной комнатой")
		assert.Equal(t, "host", r.Winner())
	case <-time.After(2 * time.Second):
		t.Fatal("Завершение дуэли не произошло")
	}
	assert.False(t, controller.Running(), "После завершения дуэли контроллер останавливается")
}

// ============================================================================
// Тесты для ResetTimer и Stop
// ============================================================================

func TestRoundController_ResetTimer_MovesToNewIndex(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)
	defer controller.Stop()

	room := createPlayingRoomForRounds()
	mockAnswers.On("RecordAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&entity.BattleAnswer{}, nil).Maybe()
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, mock.Anything, mock.Anything).
		Return([]entity.BattleAnswer{}, nil).Maybe()
	require.NoError(t, controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{}))

	// Act: внешнее продвижение комнаты перезапускает раунд на новом индексе
	controller.ResetTimer(1)

	// Assert
	state := controller.Snapshot()
	assert.Equal(t, 1, state.QuestionIndex, "Раунд должен перезапуститься на новом индексе")
	assert.False(t, state.Answered, "Новый раунд начинается без записанного ответа")

	// Перезапуск на том же индексе - no-op
	before := controller.Snapshot()
	controller.ResetTimer(1)
	after := controller.Snapshot()
	assert.LessOrEqual(t, after.RemainingMs, before.RemainingMs, "Повторный сброс на тот же индекс не должен возвращать время")
}

func TestRoundController_Stop_Idempotent(t *testing.T) {
	// Arrange
	mockRooms := new(MockRoomCoordinator)
	mockAnswers := new(MockAnswerRecorder)
	controller := createTestController(fastTestConfig(), mockRooms, mockAnswers)

	room := createPlayingRoomForRounds()
	mockAnswers.On("RecordAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&entity.BattleAnswer{}, nil).Maybe()
	mockAnswers.On("GetAnswersByQuestion", mock.Anything, mock.Anything, mock.Anything).
		Return([]entity.BattleAnswer{}, nil).Maybe()
	require.NoError(t, controller.Start(context.Background(), room, "host-user", "host-session", RoundCallbacks{}))
	require.True(t, controller.Running())

	// Act
	controller.Stop()
	controller.Stop()

	// Assert
	assert.False(t, controller.Running(), "После остановки контроллер не ведёт раунды")

	_, err := controller.SubmitAnswer(context.Background(), true)
	require.Error(t, err, "После остановки ответы не принимаются")
}
