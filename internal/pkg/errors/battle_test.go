package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBattleError_ErrorMessage(t *testing.T) {
	// Arrange
	plain := NewBattle(CodeRoomFull, "room already has a guest")
	wrapped := WrapBattle(CodeUnknown, "failed to create room", errors.New("connection refused"))

	// Act & Assert
	assert.Equal(t, "ROOM_FULL: room already has a guest", plain.Error())
	assert.Equal(t, "UNKNOWN_ERROR: failed to create room: connection refused", wrapped.Error())
}

func TestBattleError_Unwrap(t *testing.T) {
	// Arrange
	cause := errors.New("db down")
	wrapped := WrapBattle(CodeNetworkError, "store unavailable", cause)

	// Act & Assert
	assert.True(t, errors.Is(wrapped, cause), "Обёрнутая причина должна находиться через errors.Is")
}

func TestCodeOf(t *testing.T) {
	// Arrange
	tagged := NewBattle(CodeRoomExpired, "room ttl elapsed")
	deep := fmt.Errorf("handler: %w", tagged)
	untagged := errors.New("plain error")

	// Act & Assert
	assert.Equal(t, CodeRoomExpired, CodeOf(tagged))
	assert.Equal(t, CodeRoomExpired, CodeOf(deep), "Код должен извлекаться из глубины цепочки")
	assert.Equal(t, CodeUnknown, CodeOf(untagged), "Ошибка без кода должна давать UNKNOWN_ERROR")
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestIsCode(t *testing.T) {
	// Arrange
	err := NewBattle(CodeInvalidRoomCode, "bad code")

	// Act & Assert
	assert.True(t, IsCode(err, CodeInvalidRoomCode))
	assert.False(t, IsCode(err, CodeRoomNotFound))
}
