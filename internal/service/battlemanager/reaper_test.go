package battlemanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/battle-api/internal/domain/entity"
	"github.com/yourusername/battle-api/internal/realtime"
)

// ============================================================================
// Тесты для Reaper
// ============================================================================

func createTestReaper(config *Config, rooms *MockRoomCoordinator) *Reaper {
	return NewReaper(config, &Dependencies{
		Rooms:  rooms,
		Feed:   realtime.NewChangeFeed(nil),
		Config: config,
	})
}

func TestReaper_SweepsPeriodically(t *testing.T) {
	// Arrange
	config := fastTestConfig()
	mockRooms := new(MockRoomCoordinator)

	var sweeps int32
	mockRooms.On("ExpireWaitingRooms", mock.Anything, mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			atomic.AddInt32(&sweeps, 1)
		}).
		Return([]entity.BattleRoom{}, nil)

	reaper := createTestReaper(config, mockRooms)

	// Act
	reaper.Start(context.Background())
	time.Sleep(5 * config.ReaperInterval)
	reaper.Stop()

	// Assert
	assert.GreaterOrEqual(t, atomic.LoadInt32(&sweeps), int32(2), "За пять периодов должно пройти хотя бы два обхода")
}

func TestReaper_SurvivesSweepErrors(t *testing.T) {
	// Arrange
	config := fastTestConfig()
	mockRooms := new(MockRoomCoordinator)

	// Первый обход падает, последующие успешны
	mockRooms.On("ExpireWaitingRooms", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(nil, errors.New("db down")).Once()
	mockRooms.On("ExpireWaitingRooms", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]entity.BattleRoom{{ID: "room-1", Status: entity.RoomStatusAbandoned}}, nil)

	reaper := createTestReaper(config, mockRooms)

	// Act
	reaper.Start(context.Background())
	time.Sleep(5 * config.ReaperInterval)
	reaper.Stop()

	// Assert: ошибка одного обхода не останавливает обходчик
	calls := 0
	for _, call := range mockRooms.Calls {
		if call.Method == "ExpireWaitingRooms" {
			calls++
		}
	}
	assert.GreaterOrEqual(t, calls, 2, "Обходчик должен пережить ошибку и продолжить обходы")
}

func TestReaper_StopWithoutStart(t *testing.T) {
	// Arrange
	reaper := createTestReaper(fastTestConfig(), new(MockRoomCoordinator))

	// Act / Assert: остановка незапущенного обходчика не должна паниковать
	assert.NotPanics(t, func() {
		reaper.Stop()
	})
}
