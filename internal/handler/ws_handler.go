package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/battle-api/internal/domain/entity"
	"github.com/yourusername/battle-api/internal/handler/dto"
	"github.com/yourusername/battle-api/internal/realtime"
	"github.com/yourusername/battle-api/internal/service"
	"github.com/yourusername/battle-api/internal/service/battlemanager"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsSendBufferSize = 64
)

// WSHandler обрабатывает WebSocket соединения боевого режима.
// Каждое соединение получает собственный Synchronizer (подписка на change
// feed комнаты) и собственный RoundController (ведение раундов), оба
// освобождаются при закрытии соединения.
type WSHandler struct {
	roomService   *service.RoomService
	answerService *service.AnswerService
	feed          *realtime.ChangeFeed
	config        *battlemanager.Config
	deps          *battlemanager.Dependencies
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(
	roomService *service.RoomService,
	answerService *service.AnswerService,
	feed *realtime.ChangeFeed,
	config *battlemanager.Config,
) *WSHandler {
	return &WSHandler{
		roomService:   roomService,
		answerService: answerService,
		feed:          feed,
		config:        config,
		deps: &battlemanager.Dependencies{
			Rooms:   roomService,
			Answers: answerService,
			Feed:    feed,
			Config:  config,
		},
	}
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Пустой Origin - не браузерный клиент (мобильное приложение, curl и т.д.)
		if origin == "" {
			return true
		}

		allowedOrigins := []string{
			"http://localhost:5173",
			"http://localhost:8000",
			"http://localhost:3000",
		}
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	},
	EnableCompression: true,
}

// wsEnvelope — конверт сообщения в обе стороны
type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// battleConn — состояние одного WebSocket подключения к комнате
type battleConn struct {
	conn       *gorillaws.Conn
	sendCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	roomID     string
	userID     string
	sessionID  string
	sync       *realtime.Synchronizer
	controller *battlemanager.RoundController
}

// HandleConnection обрабатывает входящее WebSocket соединение
// GET /ws/battles/:id?user_id=...&session_id=...
func (h *WSHandler) HandleConnection(c *gin.Context) {
	roomID := c.MustGet("roomID").(string)

	// Браузерный WebSocket не умеет кастомные заголовки,
	// поэтому идентичность принимается и из query-параметров
	userID := c.Query("user_id")
	if userID == "" {
		userID = c.GetHeader("X-User-ID")
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = c.GetHeader("X-Session-ID")
	}
	if userID == "" || sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id and session_id are required"})
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if !room.IsParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "user is not a participant of this room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WSHandler] Ошибка апгрейда соединения: %v", err)
		return
	}

	bc := &battleConn{
		conn:       conn,
		sendCh:     make(chan []byte, wsSendBufferSize),
		done:       make(chan struct{}),
		roomID:     roomID,
		userID:     userID,
		sessionID:  sessionID,
		sync:       realtime.NewSynchronizer(h.feed),
		controller: battlemanager.NewRoundController(h.config, h.deps),
	}

	log.Printf("[WSHandler] Подключение к комнате %s (user %s, session %s)", roomID, userID, sessionID)
	h.runConnection(bc, room)
}

// runConnection запускает подписку, насосы и ведение раундов для соединения
func (h *WSHandler) runConnection(bc *battleConn, room *entity.BattleRoom) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callbacks := realtime.Callbacks{
		OnRoomUpdate: func(updated *entity.BattleRoom) {
			bc.send("room:update", dto.NewBattleRoomResponse(updated))
			h.applyRoomUpdate(ctx, bc, updated)
		},
		OnAnswerInsert: func(answer *entity.BattleAnswer) {
			// Чужая вставка - лишь низколатентная подсказка для UI,
			// сходимость обеспечивает опрос контроллера
			bc.send("answer:insert", dto.NewBattleAnswerResponse(answer))
		},
		OnPresenceUpdate: func(status entity.OpponentStatus) {
			bc.send("presence:update", status)
		},
		OnBroadcast: func(event string, payload json.RawMessage) {
			bc.send("broadcast", map[string]interface{}{"event": event, "payload": payload})
		},
	}

	if err := bc.sync.Subscribe(ctx, bc.roomID, bc.userID, bc.sessionID, callbacks); err != nil {
		log.Printf("[WSHandler] Ошибка подписки на комнату %s: %v", bc.roomID, err)
		bc.close()
		return
	}
	defer bc.sync.Unsubscribe()
	defer bc.controller.Stop()

	// Начальный снимок, чтобы клиент не ждал первого события
	bc.send("room:state", dto.NewBattleRoomResponse(room))

	if room.Status == entity.RoomStatusPlaying {
		h.startRounds(ctx, bc, room)
	}

	go bc.writePump(cancel)
	h.readLoop(ctx, bc)
}

// applyRoomUpdate реагирует на событие обновления комнаты из change feed
func (h *WSHandler) applyRoomUpdate(ctx context.Context, bc *battleConn, room *entity.BattleRoom) {
	switch {
	case room.IsTerminal():
		bc.controller.Stop()
	case room.Status == entity.RoomStatusPlaying:
		// Либо игра только началась, либо сторона соперника продвинула индекс
		if !bc.controller.Running() {
			h.startRounds(ctx, bc, room)
		} else {
			bc.controller.ResetTimer(room.CurrentQuestionIndex)
		}
	}
}

// startRounds запускает контроллер раундов для соединения
func (h *WSHandler) startRounds(ctx context.Context, bc *battleConn, room *entity.BattleRoom) {
	err := bc.controller.Start(ctx, room, bc.userID, bc.sessionID, battlemanager.RoundCallbacks{
		OnTick: func(state battlemanager.RoundState) {
			bc.send("round:tick", state)
		},
		OnTimeout: func(questionIndex int) {
			bc.send("round:timeout", map[string]interface{}{"question_index": questionIndex})
			if err := bc.sync.UpdatePresence(true); err != nil {
				log.Printf("[WSHandler] Не удалось обновить presence после таймаута: %v", err)
			}
		},
		OnAdvance: func(updated *entity.BattleRoom) {
			bc.send("room:update", dto.NewBattleRoomResponse(updated))
			if err := bc.sync.UpdatePresence(false); err != nil {
				log.Printf("[WSHandler] Не удалось сбросить presence после продвижения: %v", err)
			}
		},
		OnFinish: func(updated *entity.BattleRoom) {
			bc.send("battle:finished", dto.NewBattleRoomResponse(updated))
		},
		OnError: func(message string) {
			bc.send("round:error", map[string]interface{}{"message": message})
		},
	})
	if err != nil {
		log.Printf("[WSHandler] Не удалось запустить раунды комнаты %s: %v", bc.roomID, err)
	}
}

// readLoop читает и обрабатывает сообщения клиента до закрытия соединения
func (h *WSHandler) readLoop(ctx context.Context, bc *battleConn) {
	defer bc.close()

	bc.conn.SetReadLimit(4096)
	_ = bc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	bc.conn.SetPongHandler(func(string) error {
		return bc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := bc.conn.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure) {
				log.Printf("[WSHandler] Неожиданное закрытие соединения (комната %s): %v", bc.roomID, err)
			}
			return
		}

		var envelope wsEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			bc.send("error", map[string]interface{}{"code": "invalid_format", "message": "failed to parse message"})
			continue
		}

		h.handleClientMessage(ctx, bc, envelope)
	}
}

// handleClientMessage обрабатывает одно сообщение клиента
func (h *WSHandler) handleClientMessage(ctx context.Context, bc *battleConn, envelope wsEnvelope) {
	switch envelope.Type {
	case "battle:answer":
		var req struct {
			IsCorrect bool `json:"is_correct"`
		}
		if err := json.Unmarshal(envelope.Data, &req); err != nil {
			bc.send("error", map[string]interface{}{"code": "invalid_format", "message": "failed to parse battle:answer"})
			return
		}
		answer, err := bc.controller.SubmitAnswer(ctx, req.IsCorrect)
		if err != nil {
			bc.send("error", map[string]interface{}{"code": "answer_error", "message": err.Error()})
			return
		}
		bc.send("answer:recorded", dto.NewBattleAnswerResponse(answer))
		if err := bc.sync.UpdatePresence(true); err != nil {
			log.Printf("[WSHandler] Не удалось обновить presence после ответа: %v", err)
		}

	case "battle:broadcast":
		var req struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(envelope.Data, &req); err != nil || req.Event == "" {
			bc.send("error", map[string]interface{}{"code": "invalid_format", "message": "failed to parse battle:broadcast"})
			return
		}
		if err := bc.sync.Broadcast(req.Event, req.Payload); err != nil {
			bc.send("error", map[string]interface{}{"code": "broadcast_error", "message": err.Error()})
		}

	case "user:heartbeat":
		bc.send("server:heartbeat", map[string]interface{}{
			"timestamp":         time.Now().UnixMilli(),
			"connection_status": bc.sync.GetStatus(),
		})

	default:
		bc.send("error", map[string]interface{}{"code": "unknown_type", "message": "unknown message type " + envelope.Type})
	}
}

// send сериализует событие и кладёт его в буфер отправки.
// Переполненный буфер роняет сообщение: клиент, который не успевает
// читать, догонит состояние по следующему room:update.
func (bc *battleConn) send(eventType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[WSHandler] Ошибка сериализации события %s: %v", eventType, err)
		return
	}
	msg, err := json.Marshal(wsEnvelope{Type: eventType, Data: raw})
	if err != nil {
		return
	}

	select {
	case <-bc.done:
	case bc.sendCh <- msg:
	default:
		log.Printf("[WSHandler] Буфер отправки переполнен, событие %s отброшено (комната %s)", eventType, bc.roomID)
	}
}

// writePump пишет сообщения из буфера в соединение и шлёт пинги
func (bc *battleConn) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		bc.close()
	}()

	for {
		select {
		case <-bc.done:
			_ = bc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = bc.conn.WriteMessage(gorillaws.CloseMessage, []byte{})
			return
		case msg := <-bc.sendCh:
			_ = bc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := bc.conn.WriteMessage(gorillaws.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = bc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := bc.conn.WriteMessage(gorillaws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (bc *battleConn) close() {
	bc.closeOnce.Do(func() {
		close(bc.done)
		_ = bc.conn.Close()
	})
}
