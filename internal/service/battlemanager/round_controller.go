package battlemanager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/battle-api/internal/domain/entity"
	apperrors "github.com/yourusername/battle-api/internal/pkg/errors"
)

// RoundState — снимок состояния текущего раунда для одного игрока
type RoundState struct {
	QuestionIndex    int    `json:"question_index"`
	RemainingMs      int64  `json:"remaining_ms"`
	Answered         bool   `json:"answered"`
	OpponentAnswered bool   `json:"opponent_answered"`
	LastError        string `json:"last_error,omitempty"`
}

// RoundCallbacks — обработчики событий раунда. Любое поле может быть nil.
type RoundCallbacks struct {
	OnTick    func(state RoundState)
	OnTimeout func(questionIndex int)
	OnAdvance func(room *entity.BattleRoom)
	OnFinish  func(room *entity.BattleRoom)
	OnError   func(message string)
}

// roundRun — состояние одного прогона раунда (одного вопроса)
type roundRun struct {
	index    int
	start    time.Time
	cancel   context.CancelFunc
	answered chan struct{} // закрывается после записи собственного ответа
}

// RoundController ведёт раунды дуэли для одного подключённого игрока:
// обратный отсчёт бюджета вопроса, авто-ответ по таймауту, опрос таблицы
// ответов соперника, settle-пауза и продвижение комнаты.
//
// Оставшееся время на каждом тике пересчитывается от момента старта
// вопроса, а не декрементируется: дрейф тикера не накапливается.
// Обе стороны дуэли зовут Advance независимо; идемпотентность продвижения
// по индексу делает двойной вызов безопасным.
type RoundController struct {
	config *Config
	deps   *Dependencies

	mu        sync.Mutex
	running   bool
	baseCtx   context.Context
	roomID    string
	userID    string
	sessionID string
	callbacks RoundCallbacks

	run              *roundRun
	opponentAnswered bool
	lastError        string
	errorSeq         int

	wg sync.WaitGroup
}

// NewRoundController создает новый контроллер раундов
func NewRoundController(config *Config, deps *Dependencies) *RoundController {
	return &RoundController{
		config: config,
		deps:   deps,
	}
}

// Start запускает ведение раундов для игрока в комнате.
// Комната должна быть в статусе playing.
func (c *RoundController) Start(ctx context.Context, room *entity.BattleRoom, userID, sessionID string, callbacks RoundCallbacks) error {
	if room.Status != entity.RoomStatusPlaying {
		return apperrors.NewBattle(apperrors.CodeInvalidState, "round controller requires a playing room")
	}
	if !room.IsParticipant(userID) {
		return apperrors.NewBattle(apperrors.CodeUnauthorized, "user is not a participant of this room")
	}

	c.Stop()

	c.mu.Lock()
	c.running = true
	c.baseCtx = ctx
	c.roomID = room.ID
	c.userID = userID
	c.sessionID = sessionID
	c.callbacks = callbacks
	c.mu.Unlock()

	log.Printf("[RoundController] Раунды комнаты %s запущены для игрока %s с вопроса %d", room.ID, userID, room.CurrentQuestionIndex)
	c.startRound(room.CurrentQuestionIndex)
	return nil
}

// Stop останавливает ведение раундов. Идемпотентен.
func (c *RoundController) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	if c.run != nil {
		c.run.cancel()
		c.run = nil
	}
	roomID := c.roomID
	c.mu.Unlock()

	c.wg.Wait()
	log.Printf("[RoundController] Раунды комнаты %s остановлены", roomID)
}

// ResetTimer перезапускает раунд на вопросе с данным индексом.
// Вызывается при внешнем изменении индекса комнаты (событие change feed:
// сторона соперника продвинула комнату раньше нас). Перезапуск на уже
// идущем индексе — no-op.
func (c *RoundController) ResetTimer(questionIndex int) {
	c.startRound(questionIndex)
}

// SubmitAnswer записывает ответ игрока на текущий вопрос.
// Время ответа считается от старта вопроса на сервере.
func (c *RoundController) SubmitAnswer(ctx context.Context, isCorrect bool) (*entity.BattleAnswer, error) {
	c.mu.Lock()
	if !c.running || c.run == nil {
		c.mu.Unlock()
		return nil, apperrors.NewBattle(apperrors.CodeInvalidState, "no active round")
	}
	run := c.run
	select {
	case <-run.answered:
		c.mu.Unlock()
		return nil, apperrors.NewBattle(apperrors.CodeInvalidState, "answer already recorded for this question")
	default:
	}
	roomID, userID, sessionID := c.roomID, c.userID, c.sessionID
	elapsed := time.Since(run.start).Milliseconds()
	c.mu.Unlock()

	answer, err := c.deps.Answers.RecordAnswer(ctx, roomID, userID, sessionID, run.index, isCorrect, elapsed)
	if err != nil {
		c.setError(fmt.Sprintf("failed to record answer: %v", err))
		return nil, err
	}

	c.mu.Lock()
	// Закрываем канал только если раунд не сменился, пока шла запись
	if c.run == run {
		select {
		case <-run.answered:
		default:
			close(run.answered)
		}
	}
	c.mu.Unlock()
	return answer, nil
}

// Running сообщает, ведёт ли контроллер раунды в данный момент
func (c *RoundController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Snapshot возвращает снимок состояния текущего раунда
func (c *RoundController) Snapshot() RoundState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := RoundState{LastError: c.lastError}
	if c.run == nil {
		return state
	}
	state.QuestionIndex = c.run.index
	state.OpponentAnswered = c.opponentAnswered
	select {
	case <-c.run.answered:
		state.Answered = true
	default:
	}
	remaining := c.config.QuestionTimeBudget() - time.Since(c.run.start)
	if remaining < 0 {
		remaining = 0
	}
	state.RemainingMs = remaining.Milliseconds()
	return state
}

// startRound начинает прогон вопроса с данным индексом,
// отменяя предыдущий прогон
func (c *RoundController) startRound(questionIndex int) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	if c.run != nil && c.run.index == questionIndex {
		c.mu.Unlock()
		return
	}
	if c.run != nil {
		c.run.cancel()
	}

	runCtx, cancel := context.WithCancel(c.baseCtx)
	run := &roundRun{
		index:    questionIndex,
		start:    time.Now(),
		cancel:   cancel,
		answered: make(chan struct{}),
	}
	c.run = run
	c.opponentAnswered = false
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runRound(runCtx, run)
}

// runRound выполняет фазы одного вопроса: отсчёт, ожидание обоих ответов,
// settle-пауза, продвижение комнаты
func (c *RoundController) runRound(ctx context.Context, run *roundRun) {
	defer c.wg.Done()

	if !c.runCountdown(ctx, run) {
		return
	}
	if !c.waitBothAnswered(ctx, run) {
		return
	}

	// Settle-пауза: обе стороны видят исход вопроса перед продвижением
	select {
	case <-time.After(c.config.SettleDelay):
	case <-ctx.Done():
		return
	}

	c.advance(ctx, run)
}

// runCountdown ведёт обратный отсчёт до собственного ответа или таймаута.
// Возвращает false, если прогон отменён.
func (c *RoundController) runCountdown(ctx context.Context, run *roundRun) bool {
	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	budget := c.config.QuestionTimeBudget()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-run.answered:
			return true
		case <-ticker.C:
			remaining := budget - time.Since(run.start)
			if remaining <= 0 {
				c.recordTimeout(ctx, run)
				return true
			}
			c.mu.Lock()
			cb := c.callbacks.OnTick
			c.mu.Unlock()
			if cb != nil {
				cb(c.Snapshot())
			}
		}
	}
}

// recordTimeout записывает авто-ответ по истечении бюджета:
// неверный ответ с полным временем бюджета
func (c *RoundController) recordTimeout(ctx context.Context, run *roundRun) {
	select {
	case <-run.answered:
		return
	default:
	}

	c.mu.Lock()
	roomID, userID, sessionID := c.roomID, c.userID, c.sessionID
	cb := c.callbacks.OnTimeout
	c.mu.Unlock()

	log.Printf("[RoundController] Таймаут вопроса %d в комнате %s для игрока %s", run.index, roomID, userID)
	_, err := c.deps.Answers.RecordAnswer(ctx, roomID, userID, sessionID, run.index, false, c.config.QuestionTimeBudgetMs)
	if err != nil {
		c.setError(fmt.Sprintf("failed to record timeout answer: %v", err))
	}

	c.mu.Lock()
	if c.run == run {
		select {
		case <-run.answered:
		default:
			close(run.answered)
		}
	}
	c.mu.Unlock()

	if cb != nil {
		cb(run.index)
	}
}

// waitBothAnswered опрашивает таблицу ответов, пока по текущему вопросу
// не появятся записи обоих игроков. Feed-событие вставки ответа — лишь
// низколатентная подсказка; авторитет сходимости — этот опрос.
func (c *RoundController) waitBothAnswered(ctx context.Context, run *roundRun) bool {
	ticker := time.NewTicker(c.config.OpponentPollInterval)
	defer ticker.Stop()

	c.mu.Lock()
	roomID, userID := c.roomID, c.userID
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			answers, err := c.deps.Answers.GetAnswersByQuestion(ctx, roomID, run.index)
			if err != nil {
				c.setError(fmt.Sprintf("failed to poll opponent answer: %v", err))
				continue
			}

			selfAnswered, otherAnswered := false, false
			for _, a := range answers {
				if a.PlayerUserID == userID {
					selfAnswered = true
				} else {
					otherAnswered = true
				}
			}

			if otherAnswered {
				c.mu.Lock()
				changed := !c.opponentAnswered && c.run == run
				c.opponentAnswered = true
				cb := c.callbacks.OnTick
				c.mu.Unlock()
				if changed && cb != nil {
					cb(c.Snapshot())
				}
			}

			if selfAnswered && otherAnswered {
				return true
			}
		}
	}
}

// advance продвигает комнату и запускает следующий раунд либо завершает работу
func (c *RoundController) advance(ctx context.Context, run *roundRun) {
	room, err := c.deps.Rooms.AdvanceRoom(ctx, c.roomID)
	if err != nil {
		c.setError(fmt.Sprintf("failed to advance room: %v", err))
		return
	}

	c.mu.Lock()
	onAdvance := c.callbacks.OnAdvance
	onFinish := c.callbacks.OnFinish
	c.mu.Unlock()

	if room.IsTerminal() {
		log.Printf("[RoundController] Дуэль в комнате %s завершена со счётом %d:%d", room.ID, room.HostScore, room.GuestScore)
		c.mu.Lock()
		c.running = false
		c.run = nil
		c.mu.Unlock()
		if onFinish != nil {
			onFinish(room)
		}
		return
	}

	if room.CurrentQuestionIndex != run.index {
		if onAdvance != nil {
			onAdvance(room)
		}
		c.startRound(room.CurrentQuestionIndex)
	}
	// Индекс не изменился: комнату продвинула сторона соперника, и событие
	// change feed перезапустит раунд через ResetTimer
}

// setError запоминает ошибку раунда и планирует её автоочистку
func (c *RoundController) setError(message string) {
	c.mu.Lock()
	c.lastError = message
	c.errorSeq++
	seq := c.errorSeq
	cb := c.callbacks.OnError
	c.mu.Unlock()

	log.Printf("[RoundController] Ошибка раунда в комнате %s: %s", c.roomID, message)
	if cb != nil {
		cb(message)
	}

	time.AfterFunc(c.config.ErrorDisplayTime, func() {
		c.mu.Lock()
		// Очищаем только если ошибка не была перезаписана более новой
		if c.errorSeq == seq {
			c.lastError = ""
		}
		c.mu.Unlock()
	})
}
