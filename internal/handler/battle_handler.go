package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/battle-api/internal/handler/dto"
	"github.com/yourusername/battle-api/internal/middleware"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
	"github.com/yourusername/battle-api/internal/service"
)

// BattleHandler обрабатывает запросы боевого режима
type BattleHandler struct {
	roomService   *service.RoomService
	answerService *service.AnswerService
}

// NewBattleHandler создает новый обработчик боевого режима
func NewBattleHandler(roomService *service.RoomService, answerService *service.AnswerService) *BattleHandler {
	return &BattleHandler{
		roomService:   roomService,
		answerService: answerService,
	}
}

// identity извлекает идентичность игрока из контекста Gin
func identity(c *gin.Context) (userID, sessionID string) {
	return c.MustGet(middleware.ContextUserID).(string), c.MustGet(middleware.ContextSessionID).(string)
}

// CreateRoomRequest представляет запрос на создание комнаты
type CreateRoomRequest struct {
	Difficulty string `json:"difficulty" binding:"required,oneof=C B A S"`
}

// CreateRoom обрабатывает запрос на создание комнаты
// POST /api/battles
func (h *BattleHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, sessionID := identity(c)
	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, sessionID, req.Difficulty)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewBattleRoomResponse(room))
}

// JoinRoomRequest представляет запрос на вход в комнату по коду
type JoinRoomRequest struct {
	RoomCode string `json:"room_code" binding:"required"`
}

// JoinRoom обрабатывает вход гостя по коду приглашения
// POST /api/battles/join
func (h *BattleHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, sessionID := identity(c)
	room, err := h.roomService.JoinRoom(c.Request.Context(), req.RoomCode, userID, sessionID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBattleRoomResponse(room))
}

// GetRoom возвращает текущее состояние комнаты
// GET /api/battles/:id
func (h *BattleHandler) GetRoom(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBattleRoomResponse(room))
}

// GetRoomQuestions возвращает последовательность вопросов комнаты
// GET /api/battles/:id/questions
func (h *BattleHandler) GetRoomQuestions(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)
	userID, _ := identity(c)

	questions, err := h.roomService.GetRoomQuestions(c.Request.Context(), roomID, userID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": dto.NewBattleQuestionListResponse(questions)})
}

// StartGame переводит комнату в игру (только хост)
// POST /api/battles/:id/start
func (h *BattleHandler) StartGame(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)
	userID, _ := identity(c)

	room, err := h.roomService.StartGame(c.Request.Context(), roomID, userID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBattleRoomResponse(room))
}

// LeaveRoom обрабатывает выход участника из комнаты.
// Выход — best-effort: ответ всегда 200, исход зависит от состояния комнаты.
// POST /api/battles/:id/leave
func (h *BattleHandler) LeaveRoom(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)
	userID, _ := identity(c)

	h.roomService.LeaveRoom(c.Request.Context(), roomID, userID)
	c.JSON(http.StatusOK, gin.H{"message": "left room"})
}

// AdvanceRoom закрывает текущий вопрос комнаты, если оба ответа записаны
// POST /api/battles/:id/advance
func (h *BattleHandler) AdvanceRoom(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)

	room, err := h.roomService.AdvanceRoom(c.Request.Context(), roomID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBattleRoomResponse(room))
}

// RecordAnswerRequest представляет запрос на запись ответа
type RecordAnswerRequest struct {
	QuestionIndex *int  `json:"question_index" binding:"required"`
	IsCorrect     bool  `json:"is_correct"`
	AnswerTimeMs  int64 `json:"answer_time_ms" binding:"min=0"`
}

// RecordAnswer записывает ответ игрока на вопрос
// POST /api/battles/:id/answers
func (h *BattleHandler) RecordAnswer(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)

	var req RecordAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, sessionID := identity(c)
	answer, err := h.answerService.RecordAnswer(c.Request.Context(), roomID, userID, sessionID, *req.QuestionIndex, req.IsCorrect, req.AnswerTimeMs)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewBattleAnswerResponse(answer))
}

// GetRoomAnswers возвращает ответы комнаты.
// Необязательный query-параметр question_index сужает выборку до одного вопроса.
// GET /api/battles/:id/answers
func (h *BattleHandler) GetRoomAnswers(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)

	if idxStr := c.Query("question_index"); idxStr != "" {
		var idx int
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil || idx < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question_index"})
			return
		}
		answers, err := h.answerService.GetAnswersByQuestion(c.Request.Context(), roomID, idx)
		if err != nil {
			h.handleBattleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"answers": dto.NewBattleAnswerListResponse(answers)})
		return
	}

	answers, err := h.answerService.GetRoomAnswers(c.Request.Context(), roomID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": dto.NewBattleAnswerListResponse(answers)})
}

// GetPlayerStats возвращает агрегированную статистику игрока в комнате
// GET /api/battles/:id/stats/:userID
func (h *BattleHandler) GetPlayerStats(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)
	playerUserID := c.Param("userID")
	if playerUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userID is required"})
		return
	}

	stats, err := h.answerService.GetPlayerStats(c.Request.Context(), roomID, playerUserID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetResult возвращает итог завершённой дуэли с точки зрения запросившего
// GET /api/battles/:id/result
func (h *BattleHandler) GetResult(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)
	userID, _ := identity(c)

	result, err := h.answerService.BuildResult(c.Request.Context(), roomID, userID)
	if err != nil {
		h.handleBattleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBattleResultResponse(result))
}

// handleBattleError отображает ошибки сервисов в HTTP-статусы.
// Код BattleError возвращается клиенту: по нему клиент выбирает
// пользовательское сообщение.
func (h *BattleHandler) handleBattleError(c *gin.Context, err error) {
	var battleErr *apperrors.BattleError
	if errors.As(err, &battleErr) {
		status := http.StatusInternalServerError
		switch battleErr.Code {
		case apperrors.CodeRoomNotFound:
			status = http.StatusNotFound
		case apperrors.CodeRoomFull, apperrors.CodeRoomAlreadyStarted, apperrors.CodeRoomNotReady, apperrors.CodeInvalidState:
			status = http.StatusConflict
		case apperrors.CodeRoomExpired:
			status = http.StatusGone
		case apperrors.CodeInvalidRoomCode:
			status = http.StatusBadRequest
		case apperrors.CodeUnauthorized:
			status = http.StatusForbidden
		case apperrors.CodeNetworkError:
			status = http.StatusServiceUnavailable
		}
		if status == http.StatusInternalServerError {
			log.Printf("ERROR: Internal server error in BattleHandler: %v", err)
		}
		c.JSON(status, gin.H{"error": battleErr.Message, "code": battleErr.Code})
		return
	}

	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in BattleHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
