package errors

import (
	"errors"
	"fmt"
)

// Code — машиночитаемый код ошибки боевого режима.
// Коды стабильны и являются частью контракта API: клиент выбирает
// пользовательское сообщение по коду, а не по тексту.
type Code string

const (
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeRoomFull           Code = "ROOM_FULL"
	CodeRoomExpired        Code = "ROOM_EXPIRED"
	CodeRoomAlreadyStarted Code = "ROOM_ALREADY_STARTED"
	CodeRoomNotReady       Code = "ROOM_NOT_READY"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeInvalidRoomCode    Code = "INVALID_ROOM_CODE"
	CodeNetworkError       Code = "NETWORK_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeUnknown            Code = "UNKNOWN_ERROR"
)

// BattleError — тегированная ошибка боевого режима: машиночитаемый код
// плюс человекочитаемое сообщение. Может оборачивать исходную ошибку.
type BattleError struct {
	Code    Code
	Message string
	Err     error
}

// Error реализует интерфейс error
func (e *BattleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает обёрнутую ошибку для errors.Is/As
func (e *BattleError) Unwrap() error {
	return e.Err
}

// NewBattle создает новую BattleError с кодом и сообщением
func NewBattle(code Code, message string) *BattleError {
	return &BattleError{Code: code, Message: message}
}

// WrapBattle оборачивает существующую ошибку в BattleError
func WrapBattle(code Code, message string, err error) *BattleError {
	return &BattleError{Code: code, Message: message, Err: err}
}

// CodeOf извлекает код из цепочки ошибок.
// Для ошибок без кода возвращает CodeUnknown.
func CodeOf(err error) Code {
	var be *BattleError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnknown
}

// IsCode проверяет, несёт ли цепочка ошибок указанный код
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
