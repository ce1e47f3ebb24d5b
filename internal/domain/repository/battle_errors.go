package repository

import "errors"

var (
	// ErrRoomCodeTaken означает, что сгенерированный код комнаты уже занят
	// живой комнатой (нарушение уникального индекса). Вызывающий генерирует
	// новый код и повторяет вставку.
	ErrRoomCodeTaken = errors.New("room code already taken")
)
