package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// Типы событий change feed. Каждый тип идёт по своему каналу комнаты;
// порядок гарантируется только внутри одного канала, упорядоченность
// между каналами не обещается.
const (
	EventRoomUpdate   = "room_update"
	EventAnswerInsert = "answer_insert"
	EventPresence     = "presence"
	EventBroadcast    = "broadcast"
)

// FeedEvent — конверт события change feed
type FeedEvent struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Виды presence-сообщений
const (
	PresenceJoin  = "join"  // участник объявил присутствие
	PresenceSync  = "sync"  // ответ существующего участника новичку
	PresenceLeave = "leave" // участник ушёл
	PresenceTrack = "track" // обновление собственной записи (например, has_answered)
)

// PresenceRecord — эфемерная запись присутствия одного подключения.
// Ключом служит session id, чтобы два устройства одного аккаунта
// не схлопывались в одну запись.
type PresenceRecord struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	OnlineAt    time.Time `json:"online_at"`
	HasAnswered bool      `json:"has_answered"`
}

// PresenceMessage — сообщение presence-канала комнаты
type PresenceMessage struct {
	Kind   string         `json:"kind"`
	Record PresenceRecord `json:"record"`
}

// BroadcastMessage — произвольное сигнальное сообщение между клиентами комнаты
type BroadcastMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Имена каналов комнаты
func roomUpdateChannel(roomID string) string {
	return fmt.Sprintf("battle:room:%s:update", roomID)
}

func answerInsertChannel(roomID string) string {
	return fmt.Sprintf("battle:room:%s:answers", roomID)
}

func presenceChannel(roomID string) string {
	return fmt.Sprintf("battle:room:%s:presence", roomID)
}

func broadcastChannel(roomID string) string {
	return fmt.Sprintf("battle:room:%s:events", roomID)
}

// ChangeFeed публикует события изменения строк комнаты и ответов.
// Сервисы вызывают Publish* после фиксации транзакции; подписчики
// обоих клиентов сходятся на новом состоянии без опроса БД.
type ChangeFeed struct {
	provider PubSubProvider
}

// NewChangeFeed создает новый change feed поверх провайдера
func NewChangeFeed(provider PubSubProvider) *ChangeFeed {
	if provider == nil {
		provider = &NoOpPubSub{}
	}
	return &ChangeFeed{provider: provider}
}

// Provider возвращает низкоуровневый провайдер (для проверки живости)
func (f *ChangeFeed) Provider() PubSubProvider {
	return f.provider
}

// PublishRoomUpdate публикует событие обновления строки комнаты
func (f *ChangeFeed) PublishRoomUpdate(room *entity.BattleRoom) error {
	return f.publish(EventRoomUpdate, roomUpdateChannel(room.ID), room.ID, room)
}

// PublishAnswerInsert публикует событие вставки строки ответа
func (f *ChangeFeed) PublishAnswerInsert(answer *entity.BattleAnswer) error {
	return f.publish(EventAnswerInsert, answerInsertChannel(answer.RoomID), answer.RoomID, answer)
}

// PublishPresence публикует presence-сообщение комнаты
func (f *ChangeFeed) PublishPresence(roomID string, msg PresenceMessage) error {
	return f.publish(EventPresence, presenceChannel(roomID), roomID, msg)
}

// PublishBroadcast публикует произвольное сигнальное сообщение комнаты
func (f *ChangeFeed) PublishBroadcast(roomID string, msg BroadcastMessage) error {
	return f.publish(EventBroadcast, broadcastChannel(roomID), roomID, msg)
}

func (f *ChangeFeed) publish(eventType, channel, roomID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	event := FeedEvent{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return f.provider.Publish(channel, data)
}
