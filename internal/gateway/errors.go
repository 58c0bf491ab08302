package gateway

import (
	"errors"
	"fmt"
)

// ErrAuthRequired возвращается при попытке мутации без действующего токена
var ErrAuthRequired = errors.New("authentication required")

// StatusError — не-2xx ответ бэкенда (транспортный сбой уровня HTTP)
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded with status %d", e.Code)
}
