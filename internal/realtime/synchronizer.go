package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/battle-api/internal/domain/entity"
)

// statusPollInterval — период опроса живости канала.
// Опрос вместо событийного пуша — сознательное упрощение: переподключением
// занимается сам провайдер, синхронизатору достаточно грубого статуса.
const statusPollInterval = 1 * time.Second

// Callbacks — обработчики нормализованных событий комнаты.
// Любое поле может быть nil.
type Callbacks struct {
	OnRoomUpdate     func(room *entity.BattleRoom)
	OnAnswerInsert   func(answer *entity.BattleAnswer)
	OnPresenceUpdate func(status entity.OpponentStatus)
	OnBroadcast      func(event string, payload json.RawMessage)
}

// Synchronizer поддерживает живое представление одной комнаты для одного
// подключённого клиента: подписывается на каналы change feed комнаты,
// нормализует события и ведёт presence-учёт соперника.
//
// Ресурс с явным владением: создаётся на время жизни экрана комнаты и
// обязательно освобождается через Unsubscribe (безопасен как no-op).
type Synchronizer struct {
	feed *ChangeFeed

	mu          sync.Mutex
	active      bool
	roomID      string
	userID      string
	sessionID   string
	hasAnswered bool
	callbacks   Callbacks
	presences   map[string]PresenceRecord // по session id
	cancel      context.CancelFunc

	wg     sync.WaitGroup
	status atomic.Value // entity.ConnectionStatus
}

// NewSynchronizer создает синхронизатор поверх change feed
func NewSynchronizer(feed *ChangeFeed) *Synchronizer {
	s := &Synchronizer{
		feed:      feed,
		presences: make(map[string]PresenceRecord),
	}
	s.status.Store(entity.ConnectionDisconnected)
	return s
}

// Subscribe открывает один логический канал на комнату: обновления строки
// комнаты, вставки ответов, presence и broadcast. После установления
// подписки объявляет собственное присутствие с has_answered=false.
// Повторный вызов сперва снимает предыдущую подписку.
func (s *Synchronizer) Subscribe(ctx context.Context, roomID, userID, sessionID string, callbacks Callbacks) error {
	s.Unsubscribe()

	subCtx, cancel := context.WithCancel(ctx)

	provider := s.feed.Provider()
	roomCh, err := provider.Subscribe(subCtx, roomUpdateChannel(roomID))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to room updates: %w", err)
	}
	answerCh, err := provider.Subscribe(subCtx, answerInsertChannel(roomID))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to answer inserts: %w", err)
	}
	presenceCh, err := provider.Subscribe(subCtx, presenceChannel(roomID))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to presence: %w", err)
	}
	broadcastCh, err := provider.Subscribe(subCtx, broadcastChannel(roomID))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to broadcast: %w", err)
	}

	s.mu.Lock()
	s.active = true
	s.roomID = roomID
	s.userID = userID
	s.sessionID = sessionID
	s.hasAnswered = false
	s.callbacks = callbacks
	s.presences = make(map[string]PresenceRecord)
	s.cancel = cancel
	own := s.ownRecordLocked()
	s.mu.Unlock()

	s.status.Store(entity.ConnectionConnected)

	s.wg.Add(4)
	go s.forwardRoomUpdates(subCtx, roomCh)
	go s.forwardAnswerInserts(subCtx, answerCh)
	go s.handlePresence(subCtx, presenceCh)
	go s.handleBroadcast(subCtx, broadcastCh)

	s.wg.Add(1)
	go s.pollStatus(subCtx)

	// Объявляем своё присутствие
	if err := s.feed.PublishPresence(roomID, PresenceMessage{Kind: PresenceJoin, Record: own}); err != nil {
		log.Printf("[Synchronizer] Не удалось объявить присутствие в комнате %s: %v", roomID, err)
	}

	log.Printf("[Synchronizer] Подписка на комнату %s установлена (session %s)", roomID, sessionID)
	return nil
}

// Unsubscribe снимает подписку и очищает presence-учёт.
// Безопасен при отсутствии активной подписки (no-op).
func (s *Synchronizer) Unsubscribe() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancel
	roomID := s.roomID
	own := s.ownRecordLocked()
	s.mu.Unlock()

	// Прощальное presence-сообщение — best-effort
	if err := s.feed.PublishPresence(roomID, PresenceMessage{Kind: PresenceLeave, Record: own}); err != nil {
		log.Printf("[Synchronizer] Не удалось отправить leave для комнаты %s: %v", roomID, err)
	}

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.presences = make(map[string]PresenceRecord)
	s.mu.Unlock()
	s.status.Store(entity.ConnectionDisconnected)
	log.Printf("[Synchronizer] Подписка на комнату %s снята", roomID)
}

// GetStatus возвращает грубое состояние канала
func (s *Synchronizer) GetStatus() entity.ConnectionStatus {
	if v, ok := s.status.Load().(entity.ConnectionStatus); ok {
		return v
	}
	return entity.ConnectionDisconnected
}

// UpdatePresence обновляет собственную presence-запись (отметка "ответил")
func (s *Synchronizer) UpdatePresence(hasAnswered bool) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return fmt.Errorf("cannot update presence: not subscribed")
	}
	s.hasAnswered = hasAnswered
	roomID := s.roomID
	own := s.ownRecordLocked()
	s.mu.Unlock()

	return s.feed.PublishPresence(roomID, PresenceMessage{Kind: PresenceTrack, Record: own})
}

// Broadcast отправляет произвольное сигнальное сообщение клиентам комнаты.
// Не участвует в корректности прогресса игры, только в низколатентной
// индикации для UI.
func (s *Synchronizer) Broadcast(event string, payload interface{}) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return fmt.Errorf("cannot broadcast: not subscribed")
	}
	roomID := s.roomID
	s.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}
	return s.feed.PublishBroadcast(roomID, BroadcastMessage{Event: event, Payload: raw})
}

// OpponentStatus возвращает текущее производное состояние соперника
func (s *Synchronizer) OpponentStatus() entity.OpponentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked()
}

func (s *Synchronizer) ownRecordLocked() PresenceRecord {
	return PresenceRecord{
		UserID:      s.userID,
		SessionID:   s.sessionID,
		OnlineAt:    time.Now(),
		HasAnswered: s.hasAnswered,
	}
}

// reconcileLocked пересобирает состояние соперника из presence-записей:
// participants делятся на "свой" (совпадение session id) и "чужие";
// моделируется ровно один соперник — дуэль строго двухместная.
func (s *Synchronizer) reconcileLocked() entity.OpponentStatus {
	for sessionID, rec := range s.presences {
		if sessionID == s.sessionID {
			continue
		}
		return entity.OpponentStatus{
			UserID:           rec.UserID,
			SessionID:        rec.SessionID,
			ConnectionStatus: entity.ConnectionConnected,
			HasAnswered:      rec.HasAnswered,
		}
	}
	return entity.OpponentStatus{ConnectionStatus: entity.ConnectionDisconnected}
}

func (s *Synchronizer) forwardRoomUpdates(ctx context.Context, ch <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var event FeedEvent
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("[Synchronizer] Невалидное событие обновления комнаты: %v", err)
				continue
			}
			var room entity.BattleRoom
			if err := json.Unmarshal(event.Payload, &room); err != nil || room.ID == "" {
				log.Printf("[Synchronizer] Невалидный payload обновления комнаты: %v", err)
				continue
			}
			s.mu.Lock()
			cb := s.callbacks.OnRoomUpdate
			s.mu.Unlock()
			if cb != nil {
				cb(&room)
			}
		}
	}
}

func (s *Synchronizer) forwardAnswerInserts(ctx context.Context, ch <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var event FeedEvent
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("[Synchronizer] Невалидное событие вставки ответа: %v", err)
				continue
			}
			var answer entity.BattleAnswer
			if err := json.Unmarshal(event.Payload, &answer); err != nil || answer.RoomID == "" {
				log.Printf("[Synchronizer] Невалидный payload вставки ответа: %v", err)
				continue
			}
			s.mu.Lock()
			cb := s.callbacks.OnAnswerInsert
			s.mu.Unlock()
			if cb != nil {
				cb(&answer)
			}
		}
	}
}

func (s *Synchronizer) handlePresence(ctx context.Context, ch <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var event FeedEvent
			if err := json.Unmarshal(data, &event); err != nil {
				continue
			}
			var msg PresenceMessage
			if err := json.Unmarshal(event.Payload, &msg); err != nil || msg.Record.SessionID == "" {
				continue
			}
			s.applyPresence(msg)
		}
	}
}

func (s *Synchronizer) applyPresence(msg PresenceMessage) {
	s.mu.Lock()
	own := msg.Record.SessionID == s.sessionID
	roomID := s.roomID
	var reply *PresenceRecord

	switch msg.Kind {
	case PresenceJoin:
		if !own {
			s.presences[msg.Record.SessionID] = msg.Record
			// Отвечаем новичку своей записью, чтобы он узнал о нас.
			// Отвечаем только на join: sync не порождает новых sync.
			rec := s.ownRecordLocked()
			reply = &rec
		}
	case PresenceSync, PresenceTrack:
		if !own {
			s.presences[msg.Record.SessionID] = msg.Record
		}
	case PresenceLeave:
		delete(s.presences, msg.Record.SessionID)
	default:
		s.mu.Unlock()
		return
	}

	status := s.reconcileLocked()
	cb := s.callbacks.OnPresenceUpdate
	s.mu.Unlock()

	if reply != nil {
		if err := s.feed.PublishPresence(roomID, PresenceMessage{Kind: PresenceSync, Record: *reply}); err != nil {
			log.Printf("[Synchronizer] Не удалось ответить sync в комнате %s: %v", roomID, err)
		}
	}
	if cb != nil {
		cb(status)
	}
}

func (s *Synchronizer) handleBroadcast(ctx context.Context, ch <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var event FeedEvent
			if err := json.Unmarshal(data, &event); err != nil {
				continue
			}
			var msg BroadcastMessage
			if err := json.Unmarshal(event.Payload, &msg); err != nil {
				continue
			}
			s.mu.Lock()
			cb := s.callbacks.OnBroadcast
			s.mu.Unlock()
			if cb != nil {
				cb(msg.Event, msg.Payload)
			}
		}
	}
}

// pollStatus опрашивает живость провайдера раз в секунду и отображает её
// в грубый статус: подписан и ping проходит — connected, подписан без
// ping — reconnecting, не подписан — disconnected.
func (s *Synchronizer) pollStatus(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.status.Store(entity.ConnectionDisconnected)
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, statusPollInterval)
			err := s.feed.Provider().Ping(pingCtx)
			cancel()
			if err != nil {
				s.status.Store(entity.ConnectionReconnecting)
			} else {
				s.status.Store(entity.ConnectionConnected)
			}
		}
	}
}
