package battlemanager

import (
	"context"
	"log"
	"time"
)

// Reaper периодически хоронит просроченные залы ожидания: комнаты,
// которые остались в статусе waiting дольше своего TTL, переводятся
// в abandoned, чтобы их коды нельзя было использовать для входа.
type Reaper struct {
	config *Config
	deps   *Dependencies

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper создает новый обходчик просроченных комнат
func NewReaper(config *Config, deps *Dependencies) *Reaper {
	return &Reaper{
		config: config,
		deps:   deps,
	}
}

// Start запускает периодический обход в фоновой горутине
func (r *Reaper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(runCtx)
	log.Printf("[Reaper] Обход просроченных комнат запущен (период %v)", r.config.ReaperInterval)
}

// Stop останавливает обход и дожидается завершения текущей итерации
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	log.Println("[Reaper] Обход просроченных комнат остановлен")
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, r.config.ReaperInterval)
	defer cancel()

	rooms, err := r.deps.Rooms.ExpireWaitingRooms(sweepCtx, time.Now())
	if err != nil {
		log.Printf("[Reaper] Ошибка обхода просроченных комнат: %v", err)
		return
	}
	for i := range rooms {
		log.Printf("[Reaper] Комната %s (код %s) просрочена и заброшена", rooms[i].ID, rooms[i].RoomCode)
	}
}
