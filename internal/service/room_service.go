package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/battle-api/internal/domain/entity"
	"github.com/yourusername/battle-api/internal/domain/repository"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
	"github.com/yourusername/battle-api/internal/realtime"
	"github.com/yourusername/battle-api/internal/service/battlemanager"
)

// roomCodeAlphabet — алфавит кода комнаты. Без строчных букв, чтобы код
// можно было диктовать голосом; ввод нормализуется к верхнему регистру.
const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxRoomCodeAttempts — число попыток генерации при коллизии кода
const maxRoomCodeAttempts = 5

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Ключи кеша
const (
	roomSnapshotTTL  = 2 * time.Second
	roomQuestionsTTL = 30 * time.Minute
)

func roomSnapshotKey(roomID string) string {
	return "battle:snapshot:" + roomID
}

func roomQuestionsKey(roomID string) string {
	return "battle:questions:" + roomID
}

// RoomService управляет жизненным циклом комнат дуэлей.
// Все переходы статуса выполняются атомарными методами репозитория;
// сервис добавляет валидацию входа, подбор вопросов, кеширование
// снимков и публикацию событий в change feed после фиксации.
type RoomService struct {
	roomRepo     repository.BattleRoomRepository
	questionRepo repository.QuestionRepository
	cacheRepo    repository.CacheRepository
	feed         *realtime.ChangeFeed
	config       *battlemanager.Config
}

// NewRoomService создает новый сервис комнат
func NewRoomService(
	roomRepo repository.BattleRoomRepository,
	questionRepo repository.QuestionRepository,
	cacheRepo repository.CacheRepository,
	feed *realtime.ChangeFeed,
	config *battlemanager.Config,
) *RoomService {
	return &RoomService{
		roomRepo:     roomRepo,
		questionRepo: questionRepo,
		cacheRepo:    cacheRepo,
		feed:         feed,
		config:       config,
	}
}

// CreateRoom создает комнату в статусе waiting: подбирает последовательность
// вопросов выбранной сложности и генерирует уникальный код приглашения.
// Коллизия кода (23505) разрешается повторной генерацией.
func (s *RoomService) CreateRoom(ctx context.Context, hostUserID, hostSessionID, difficulty string) (*entity.BattleRoom, error) {
	if !entity.IsValidDifficulty(difficulty) {
		return nil, fmt.Errorf("%w: invalid difficulty %q", apperrors.ErrValidation, difficulty)
	}
	if hostUserID == "" || hostSessionID == "" {
		return nil, fmt.Errorf("%w: host user id and session id are required", apperrors.ErrValidation)
	}

	questions, err := s.questionRepo.GetRandomByDifficulty(ctx, difficulty, entity.QuestionsPerBattle)
	if err != nil {
		log.Printf("[RoomService] Ошибка выборки вопросов сложности %s: %v", difficulty, err)
		return nil, apperrors.WrapBattle(apperrors.CodeUnknown, "failed to sample questions", err)
	}
	if len(questions) < entity.QuestionsPerBattle {
		log.Printf("[RoomService] Пул вопросов сложности %s слишком мал: %d < %d", difficulty, len(questions), entity.QuestionsPerBattle)
		return nil, apperrors.NewBattle(apperrors.CodeUnknown,
			fmt.Sprintf("question pool for difficulty %s has only %d questions, need %d", difficulty, len(questions), entity.QuestionsPerBattle))
	}

	questionIDs := make(entity.StringArray, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}

	now := time.Now()
	room := &entity.BattleRoom{
		ID:            uuid.NewString(),
		Difficulty:    difficulty,
		HostUserID:    hostUserID,
		HostSessionID: hostSessionID,
		Status:        entity.RoomStatusWaiting,
		QuestionIDs:   questionIDs,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.config.RoomTTL()),
	}

	for attempt := 1; ; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return nil, apperrors.WrapBattle(apperrors.CodeUnknown, "failed to generate room code", err)
		}
		room.RoomCode = code

		err = s.roomRepo.Create(ctx, room)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrRoomCodeTaken) && attempt < maxRoomCodeAttempts {
			log.Printf("[RoomService] Коллизия кода комнаты %s, попытка %d", code, attempt)
			continue
		}
		log.Printf("[RoomService] Ошибка создания комнаты: %v", err)
		return nil, apperrors.WrapBattle(apperrors.CodeUnknown, "failed to create room", err)
	}

	s.cacheSnapshot(room)
	s.publishRoomUpdate(room)
	log.Printf("[RoomService] Комната %s создана (код %s, сложность %s, хост %s)", room.ID, room.RoomCode, difficulty, hostUserID)
	return room, nil
}

// JoinRoom сажает гостя в комнату по коду приглашения.
// Код нормализуется к верхнему регистру; синтаксически невалидный код
// отклоняется без обращения к хранилищу.
func (s *RoomService) JoinRoom(ctx context.Context, roomCode, guestUserID, guestSessionID string) (*entity.BattleRoom, error) {
	code := strings.ToUpper(strings.TrimSpace(roomCode))
	if !roomCodePattern.MatchString(code) {
		return nil, apperrors.NewBattle(apperrors.CodeInvalidRoomCode, "room code must be 6 characters [A-Z0-9]")
	}
	if guestUserID == "" || guestSessionID == "" {
		return nil, fmt.Errorf("%w: guest user id and session id are required", apperrors.ErrValidation)
	}

	room, err := s.roomRepo.Join(ctx, code, guestUserID, guestSessionID)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(room)
	s.publishRoomUpdate(room)
	log.Printf("[RoomService] Гость %s присоединился к комнате %s", guestUserID, room.ID)
	return room, nil
}

// StartGame переводит комнату ready → playing. Разрешён только хосту.
func (s *RoomService) StartGame(ctx context.Context, roomID, hostUserID string) (*entity.BattleRoom, error) {
	room, err := s.roomRepo.Start(ctx, roomID, hostUserID)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(room)
	s.publishRoomUpdate(room)
	log.Printf("[RoomService] Игра в комнате %s началась", roomID)
	return room, nil
}

// LeaveRoom обрабатывает выход участника. Выход — best-effort операция
// на пути размонтирования клиента: ошибки логируются, но не возвращаются.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) {
	room, err := s.roomRepo.Leave(ctx, roomID, userID)
	if err != nil {
		log.Printf("[RoomService] Выход из комнаты %s (user %s) не удался: %v", roomID, userID, err)
		return
	}

	s.cacheSnapshot(room)
	s.publishRoomUpdate(room)
	log.Printf("[RoomService] Участник %s покинул комнату %s (статус %s)", userID, roomID, room.Status)
}

// GetRoom возвращает текущее состояние комнаты.
// Снимок идёт через кеш с коротким TTL: он гасит шторм опросов после
// feed-события, а ограниченная (<= TTL) несвежесть допустима, потому что
// авторитет сходимости — само хранилище.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*entity.BattleRoom, error) {
	var cached entity.BattleRoom
	if err := s.cacheRepo.GetJSON(roomSnapshotKey(roomID), &cached); err == nil && cached.ID != "" {
		return &cached, nil
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(room)
	return room, nil
}

// GetRoomQuestions возвращает последовательность вопросов комнаты в порядке
// прохождения. Доступно только участникам: корректность ответа судит клиент,
// поэтому чтения раздаются обоим игрокам целиком при входе в игру.
func (s *RoomService) GetRoomQuestions(ctx context.Context, roomID, userID string) ([]entity.Question, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, apperrors.NewBattle(apperrors.CodeUnauthorized, "only participants can read room questions")
	}

	// Последовательность вопросов иммутабельна после создания комнаты
	var cached []entity.Question
	if err := s.cacheRepo.GetJSON(roomQuestionsKey(roomID), &cached); err == nil && len(cached) == room.TotalQuestions() {
		return cached, nil
	}

	questions, err := s.questionRepo.GetByIDs(ctx, room.QuestionIDs)
	if err != nil {
		return nil, apperrors.WrapBattle(apperrors.CodeUnknown, "failed to load room questions", err)
	}
	if len(questions) != room.TotalQuestions() {
		log.Printf("[RoomService] Комната %s ссылается на отсутствующие вопросы: %d из %d", roomID, len(questions), room.TotalQuestions())
		return nil, apperrors.NewBattle(apperrors.CodeUnknown, "room references missing questions")
	}

	if err := s.cacheRepo.SetJSON(roomQuestionsKey(roomID), questions, roomQuestionsTTL); err != nil {
		log.Printf("[RoomService] Не удалось закешировать вопросы комнаты %s: %v", roomID, err)
	}
	return questions, nil
}

// AdvanceRoom закрывает текущий вопрос комнаты, если оба ответа записаны.
// Обе стороны вызывают её после settle-паузы; идемпотентность по индексу
// делает двойной вызов безопасным.
func (s *RoomService) AdvanceRoom(ctx context.Context, roomID string) (*entity.BattleRoom, error) {
	room, err := s.roomRepo.Advance(ctx, roomID)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(room)
	s.publishRoomUpdate(room)
	return room, nil
}

// ExpireWaitingRooms переводит просроченные комнаты waiting в abandoned
// и публикует события по каждой затронутой комнате
func (s *RoomService) ExpireWaitingRooms(ctx context.Context, now time.Time) ([]entity.BattleRoom, error) {
	rooms, err := s.roomRepo.ExpireWaiting(ctx, now)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		s.cacheSnapshot(&rooms[i])
		s.publishRoomUpdate(&rooms[i])
	}
	if len(rooms) > 0 {
		log.Printf("[RoomService] Просрочено комнат ожидания: %d", len(rooms))
	}
	return rooms, nil
}

func (s *RoomService) cacheSnapshot(room *entity.BattleRoom) {
	if err := s.cacheRepo.SetJSON(roomSnapshotKey(room.ID), room, roomSnapshotTTL); err != nil {
		log.Printf("[RoomService] Не удалось закешировать снимок комнаты %s: %v", room.ID, err)
	}
}

func (s *RoomService) publishRoomUpdate(room *entity.BattleRoom) {
	if err := s.feed.PublishRoomUpdate(room); err != nil {
		log.Printf("[RoomService] Не удалось опубликовать обновление комнаты %s: %v", room.ID, err)
	}
}

// generateRoomCode генерирует 6-символьный код из roomCodeAlphabet
func generateRoomCode() (string, error) {
	buf := make([]byte, entity.RoomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, entity.RoomCodeLength)
	for i, b := range buf {
		code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(code), nil
}
