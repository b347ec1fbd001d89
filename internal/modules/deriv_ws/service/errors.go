package service

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDisconnected соединение потеряно или клиент остановлен.
	ErrDisconnected = errors.New("deriv ws: disconnected")
	// ErrRequestTimeout ответ на req_id не пришёл вовремя, соединение живо.
	ErrRequestTimeout = errors.New("deriv ws: request timeout")
	// ErrConnectTimeout не дождались состояния Connected.
	ErrConnectTimeout = errors.New("deriv ws: connect timeout")
)

// ProtocolError ошибка, которую брокер вернул в теле ответа.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("deriv: %s: %s", e.Code, e.Message)
}
