package dto

import (
	"time"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// BattleRoomResponse представляет комнату дуэли в ответах API
type BattleRoomResponse struct {
	ID                   string     `json:"id"`
	RoomCode             string     `json:"room_code"`
	Difficulty           string     `json:"difficulty"`
	HostUserID           string     `json:"host_user_id"`
	GuestUserID          *string    `json:"guest_user_id"`
	Status               string     `json:"status"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TotalQuestions       int        `json:"total_questions"`
	HostScore            int        `json:"host_score"`
	GuestScore           int        `json:"guest_score"`
	CreatedAt            time.Time  `json:"created_at"`
	ExpiresAt            time.Time  `json:"expires_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// NewBattleRoomResponse создает DTO из сущности комнаты.
// Список question_ids наружу не отдаётся: вопросы выдаются отдельным
// эндпоинтом только участникам.
func NewBattleRoomResponse(room *entity.BattleRoom) *BattleRoomResponse {
	return &BattleRoomResponse{
		ID:                   room.ID,
		RoomCode:             room.RoomCode,
		Difficulty:           room.Difficulty,
		HostUserID:           room.HostUserID,
		GuestUserID:          room.GuestUserID,
		Status:               room.Status,
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		TotalQuestions:       room.TotalQuestions(),
		HostScore:            room.HostScore,
		GuestScore:           room.GuestScore,
		CreatedAt:            room.CreatedAt,
		ExpiresAt:            room.ExpiresAt,
		StartedAt:            room.StartedAt,
		FinishedAt:           room.FinishedAt,
	}
}

// BattleAnswerResponse представляет записанный ответ в ответах API
type BattleAnswerResponse struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"room_id"`
	PlayerUserID  string    `json:"player_user_id"`
	QuestionIndex int       `json:"question_index"`
	IsCorrect     bool      `json:"is_correct"`
	AnswerTimeMs  int64     `json:"answer_time_ms"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// NewBattleAnswerResponse создает DTO из сущности ответа
func NewBattleAnswerResponse(answer *entity.BattleAnswer) *BattleAnswerResponse {
	return &BattleAnswerResponse{
		ID:            answer.ID,
		RoomID:        answer.RoomID,
		PlayerUserID:  answer.PlayerUserID,
		QuestionIndex: answer.QuestionIndex,
		IsCorrect:     answer.IsCorrect,
		AnswerTimeMs:  answer.AnswerTimeMs,
		AnsweredAt:    answer.AnsweredAt,
	}
}

// NewBattleAnswerListResponse создает список DTO из списка ответов
func NewBattleAnswerListResponse(answers []entity.BattleAnswer) []BattleAnswerResponse {
	response := make([]BattleAnswerResponse, 0, len(answers))
	for i := range answers {
		response = append(response, *NewBattleAnswerResponse(&answers[i]))
	}
	return response
}

// BattleQuestionResponse представляет вопрос последовательности комнаты.
// Чтение включается: корректность ответа судит клиент.
type BattleQuestionResponse struct {
	ID         string `json:"id"`
	Word       string `json:"word"`
	Reading    string `json:"reading"`
	Difficulty string `json:"difficulty"`
}

// NewBattleQuestionListResponse создает список DTO из последовательности вопросов
func NewBattleQuestionListResponse(questions []entity.Question) []BattleQuestionResponse {
	response := make([]BattleQuestionResponse, 0, len(questions))
	for _, q := range questions {
		response = append(response, BattleQuestionResponse{
			ID:         q.ID,
			Word:       q.Word,
			Reading:    q.Reading,
			Difficulty: q.Difficulty,
		})
	}
	return response
}

// BattleResultResponse представляет итог дуэли с точки зрения запросившего игрока
type BattleResultResponse struct {
	RoomID         string             `json:"room_id"`
	HostScore      int                `json:"host_score"`
	GuestScore     int                `json:"guest_score"`
	Winner         string             `json:"winner"`
	TotalQuestions int                `json:"total_questions"`
	PlayerStats    entity.PlayerStats `json:"player_stats"`
	OpponentStats  entity.PlayerStats `json:"opponent_stats"`
}

// NewBattleResultResponse создает DTO из снимка результата
func NewBattleResultResponse(result *entity.BattleResult) *BattleResultResponse {
	return &BattleResultResponse{
		RoomID:         result.RoomID,
		HostScore:      result.HostScore,
		GuestScore:     result.GuestScore,
		Winner:         result.Winner,
		TotalQuestions: result.TotalQuestions,
		PlayerStats:    result.PlayerStats,
		OpponentStats:  result.OpponentStats,
	}
}
