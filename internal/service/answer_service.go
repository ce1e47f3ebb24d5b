package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/battle-api/internal/domain/entity"
	"github.com/yourusername/battle-api/internal/domain/repository"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
	"github.com/yourusername/battle-api/internal/realtime"
	"github.com/yourusername/battle-api/internal/service/battlemanager"
)

// battleResultTTL — TTL кеша собранного результата. Результат иммутабелен
// после перехода комнаты в finished, кеш только экономит агрегацию.
const battleResultTTL = time.Hour

func battleResultKey(roomID, userID string) string {
	return fmt.Sprintf("battle:result:%s:%s", roomID, userID)
}

// AnswerService записывает и агрегирует ответы дуэли.
// Корректность ответа и время судит клиент (граница доверия контракта);
// сервис проверяет только принадлежность к комнате, фазу игры и границы
// значений, после чего делает upsert по естественному ключу.
type AnswerService struct {
	answerRepo repository.BattleAnswerRepository
	roomRepo   repository.BattleRoomRepository
	cacheRepo  repository.CacheRepository
	feed       *realtime.ChangeFeed
	config     *battlemanager.Config
}

// NewAnswerService создает новый сервис ответов
func NewAnswerService(
	answerRepo repository.BattleAnswerRepository,
	roomRepo repository.BattleRoomRepository,
	cacheRepo repository.CacheRepository,
	feed *realtime.ChangeFeed,
	config *battlemanager.Config,
) *AnswerService {
	return &AnswerService{
		answerRepo: answerRepo,
		roomRepo:   roomRepo,
		cacheRepo:  cacheRepo,
		feed:       feed,
		config:     config,
	}
}

// RecordAnswer записывает ответ игрока на вопрос с данным индексом.
// Повторная запись по тому же (room, player, index) перезаписывает
// предыдущую: гонка ручного ответа с авто-ответом по таймауту даёт
// ровно одну строку. answerTimeMs зажимается в [0, бюджет вопроса].
func (s *AnswerService) RecordAnswer(ctx context.Context, roomID, playerUserID, playerSessionID string, questionIndex int, isCorrect bool, answerTimeMs int64) (*entity.BattleAnswer, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if !room.IsParticipant(playerUserID) {
		return nil, apperrors.NewBattle(apperrors.CodeUnauthorized, "user is not a participant of this room")
	}
	if room.Status != entity.RoomStatusPlaying {
		return nil, apperrors.NewBattle(apperrors.CodeInvalidState, "answers are only accepted while the room is playing")
	}
	if questionIndex < 0 || questionIndex >= room.TotalQuestions() {
		return nil, fmt.Errorf("%w: question index %d out of range [0, %d)", apperrors.ErrValidation, questionIndex, room.TotalQuestions())
	}

	if answerTimeMs < 0 {
		answerTimeMs = 0
	}
	if answerTimeMs > s.config.QuestionTimeBudgetMs {
		answerTimeMs = s.config.QuestionTimeBudgetMs
	}

	answer := &entity.BattleAnswer{
		ID:              uuid.NewString(),
		RoomID:          roomID,
		PlayerUserID:    playerUserID,
		PlayerSessionID: playerSessionID,
		QuestionIndex:   questionIndex,
		QuestionID:      room.QuestionIDs[questionIndex],
		IsCorrect:       isCorrect,
		AnswerTimeMs:    answerTimeMs,
		AnsweredAt:      time.Now(),
	}

	if err := s.answerRepo.Upsert(ctx, answer); err != nil {
		log.Printf("[AnswerService] Ошибка записи ответа (комната %s, игрок %s, вопрос %d): %v", roomID, playerUserID, questionIndex, err)
		return nil, apperrors.WrapBattle(apperrors.CodeUnknown, "failed to record answer", err)
	}

	if err := s.feed.PublishAnswerInsert(answer); err != nil {
		log.Printf("[AnswerService] Не удалось опубликовать вставку ответа (комната %s): %v", roomID, err)
	}
	return answer, nil
}

// GetAnswersByQuestion возвращает ответы обоих игроков на вопрос комнаты
func (s *AnswerService) GetAnswersByQuestion(ctx context.Context, roomID string, questionIndex int) ([]entity.BattleAnswer, error) {
	return s.answerRepo.GetByQuestion(ctx, roomID, questionIndex)
}

// GetRoomAnswers возвращает все ответы комнаты, упорядоченные по индексу вопроса
func (s *AnswerService) GetRoomAnswers(ctx context.Context, roomID string) ([]entity.BattleAnswer, error) {
	return s.answerRepo.GetByRoom(ctx, roomID)
}

// GetPlayerStats агрегирует статистику игрока по его ответам в комнате.
// Пустой набор ответов даёт нулевую статистику, а не ошибку.
func (s *AnswerService) GetPlayerStats(ctx context.Context, roomID, playerUserID string) (*entity.PlayerStats, error) {
	answers, err := s.answerRepo.GetByPlayer(ctx, roomID, playerUserID)
	if err != nil {
		return nil, err
	}
	stats := aggregateStats(answers)
	return &stats, nil
}

// BuildResult собирает снимок результата дуэли с точки зрения userID:
// его статистика идёт в PlayerStats, статистика соперника — в OpponentStats.
// Доступен только после перехода комнаты в терминальный статус.
func (s *AnswerService) BuildResult(ctx context.Context, roomID, userID string) (*entity.BattleResult, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, apperrors.NewBattle(apperrors.CodeUnauthorized, "user is not a participant of this room")
	}
	if !room.IsTerminal() {
		return nil, apperrors.NewBattle(apperrors.CodeInvalidState, "result is available only after the battle has ended")
	}

	// Результат терминальной комнаты иммутабелен
	var cached entity.BattleResult
	if err := s.cacheRepo.GetJSON(battleResultKey(roomID, userID), &cached); err == nil && cached.RoomID != "" {
		return &cached, nil
	}

	answers, err := s.answerRepo.GetByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var own, opponent []entity.BattleAnswer
	for _, a := range answers {
		if a.PlayerUserID == userID {
			own = append(own, a)
		} else {
			opponent = append(opponent, a)
		}
	}

	result := &entity.BattleResult{
		RoomID:         room.ID,
		HostScore:      room.HostScore,
		GuestScore:     room.GuestScore,
		Winner:         room.Winner(),
		TotalQuestions: room.TotalQuestions(),
		PlayerStats:    aggregateStats(own),
		OpponentStats:  aggregateStats(opponent),
	}

	if err := s.cacheRepo.SetJSON(battleResultKey(roomID, userID), result, battleResultTTL); err != nil {
		log.Printf("[AnswerService] Не удалось закешировать результат комнаты %s: %v", roomID, err)
	}
	return result, nil
}

// aggregateStats считает статистику по набору ответов одного игрока
func aggregateStats(answers []entity.BattleAnswer) entity.PlayerStats {
	if len(answers) == 0 {
		return entity.PlayerStats{}
	}

	var stats entity.PlayerStats
	var totalTime int64
	stats.FastestAnswer = answers[0].AnswerTimeMs
	for _, a := range answers {
		if a.IsCorrect {
			stats.CorrectAnswers++
		}
		totalTime += a.AnswerTimeMs
		if a.AnswerTimeMs < stats.FastestAnswer {
			stats.FastestAnswer = a.AnswerTimeMs
		}
	}
	stats.AverageAnswerTime = float64(totalTime) / float64(len(answers))
	return stats
}
