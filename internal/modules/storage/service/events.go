package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"deriv_bot/internal/models"
	"deriv_bot/pkg/db"
)

// EventRepository журнал событий бота (таблица events).
type EventRepository struct {
	db  db.TxManager
	now func() time.Time
}

func NewEventRepository(tx db.TxManager) *EventRepository {
	return &EventRepository{db: tx, now: time.Now}
}

func (r *EventRepository) LogEvent(ctx context.Context, level models.EventLevel, typ, message string, data map[string]any) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("EventRepository.LogEvent: %w", err)
		}
	}()
	if data == nil {
		data = map[string]any{}
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.Conn().Exec(ctx, insertEventSQL, r.now().UTC(), string(level), typ, message, raw)
	return err
}

// ListEvents последние события, новые первыми.
func (r *EventRepository) ListEvents(ctx context.Context, limit int) (out []models.Event, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("EventRepository.ListEvents: %w", err)
		}
	}()
	rows, err := r.db.Conn().Query(ctx, listEventsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e     models.Event
			level string
			raw   []byte
		)
		if err = rows.Scan(&e.TS, &level, &e.Type, &e.Message, &raw); err != nil {
			return nil, err
		}
		e.Level = models.EventLevel(level)
		e.Data = map[string]any{}
		if len(raw) > 0 {
			if err = sonic.Unmarshal(raw, &e.Data); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
