package service

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

type subscriptionRef struct {
	ID string `json:"id"`
}

// Response входящий кадр: ответ на запрос и/или push по подписке.
// Полезная нагрузка разбирается лениво через Decode.
type Response struct {
	ReqID        *int64           `json:"req_id,omitempty"`
	MsgType      string           `json:"msg_type"`
	Error        *ProtocolError   `json:"error,omitempty"`
	Subscription *subscriptionRef `json:"subscription,omitempty"`

	Raw []byte `json:"-"`
}

// ParseFrame разбирает сырой кадр брокера.
func ParseFrame(raw []byte) (*Response, error) {
	var r Response
	if err := sonic.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(err, "parse frame")
	}
	r.Raw = raw
	return &r, nil
}

// Err ошибка брокера из тела ответа (nil если её нет).
func (r *Response) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}

func (r *Response) SubscriptionID() string {
	if r == nil || r.Subscription == nil {
		return ""
	}
	return r.Subscription.ID
}

// Decode разбирает весь кадр в типизированную структуру.
func (r *Response) Decode(v any) error {
	if err := sonic.Unmarshal(r.Raw, v); err != nil {
		return errors.Wrapf(err, "decode %s", r.MsgType)
	}
	return nil
}
