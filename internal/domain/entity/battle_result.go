package entity

// ConnectionStatus — грубое состояние realtime-канала клиента
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// OpponentStatus — эфемерное, производное состояние соперника.
// Восстанавливается заново при каждом изменении presence-данных и не
// переживает подписку; потеря при реконнекте ожидаема.
type OpponentStatus struct {
	UserID           string           `json:"user_id"`
	SessionID        string           `json:"session_id"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	HasAnswered      bool             `json:"has_answered"`
}

// PlayerStats — производная статистика игрока по всем его ответам в комнате
type PlayerStats struct {
	CorrectAnswers    int     `json:"correct_answers"`
	AverageAnswerTime float64 `json:"average_answer_time"`
	FastestAnswer     int64   `json:"fastest_answer"`
}

// BattleResult — снимок результата дуэли, собираемый после перехода
// комнаты в статус finished
type BattleResult struct {
	RoomID         string      `json:"room_id"`
	HostScore      int         `json:"host_score"`
	GuestScore     int         `json:"guest_score"`
	Winner         string      `json:"winner"` // host | guest | draw
	TotalQuestions int         `json:"total_questions"`
	PlayerStats    PlayerStats `json:"player_stats"`
	OpponentStats  PlayerStats `json:"opponent_stats"`
}
