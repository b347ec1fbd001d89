package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"deriv_bot/internal/models"
	"deriv_bot/pkg/db"
)

const lossStreakWindow = 20

// TradeRepository журнал сделок (таблица trades).
type TradeRepository struct {
	db  db.TxManager
	now func() time.Time
}

func NewTradeRepository(tx db.TxManager) *TradeRepository {
	return &TradeRepository{db: tx, now: time.Now}
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func EnsureSchema(ctx context.Context, tx db.TxManager) error {
	return tx.RunMaster(ctx, func(ctxTx context.Context, t pgx.Tx) error {
		if _, err := t.Exec(ctxTx, schemaSQL); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
		return nil
	})
}

func (r *TradeRepository) InsertTrade(ctx context.Context, row models.TradeRow) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("TradeRepository.InsertTrade: %w", err)
		}
	}()
	status := row.Status
	if status == "" {
		status = models.TradeOpen
	}
	_, err = r.db.Conn().Exec(ctx, insertTradeSQL,
		row.ID, row.Symbol, string(row.Side), string(status), row.ContractID,
		row.EntryTime.UTC(), row.EntryPrice, row.ExitTime, row.ExitPrice, row.PnL,
		row.Stake, row.Score, row.ReasonsJSON, row.BalanceBefore, row.BalanceAfter,
		row.TakeProfit, row.StopLoss,
	)
	return err
}

func (r *TradeRepository) CloseTrade(ctx context.Context, id string, exitTime time.Time, pnl, balanceAfter float64, contractID int64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("TradeRepository.CloseTrade: %w", err)
		}
	}()
	_, err = r.db.Conn().Exec(ctx, closeTradeSQL, id, exitTime.UTC(), pnl, balanceAfter, contractID)
	return err
}

// MarkUnknown сделка куплена, но исход не получен.
func (r *TradeRepository) MarkUnknown(ctx context.Context, id string, contractID int64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("TradeRepository.MarkUnknown: %w", err)
		}
	}()
	_, err = r.db.Conn().Exec(ctx, markUnknownSQL, id, contractID)
	return err
}

func (r *TradeRepository) DeleteTrade(ctx context.Context, id string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("TradeRepository.DeleteTrade: %w", err)
		}
	}()
	_, err = r.db.Conn().Exec(ctx, deleteTradeSQL, id)
	return err
}

// ListTrades последние сделки по времени входа, новые первыми.
func (r *TradeRepository) ListTrades(ctx context.Context, limit int) (out []models.TradeRow, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("TradeRepository.ListTrades: %w", err)
		}
	}()
	rows, err := r.db.Conn().Query(ctx, listTradesSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t            models.TradeRow
			side, status string
		)
		if err = rows.Scan(
			&t.ID, &t.Symbol, &side, &status, &t.ContractID, &t.EntryTime, &t.EntryPrice,
			&t.ExitTime, &t.ExitPrice, &t.PnL, &t.Stake, &t.Score, &t.ReasonsJSON,
			&t.BalanceBefore, &t.BalanceAfter, &t.TakeProfit, &t.StopLoss,
		); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.Status = models.TradeStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RiskCounters счётчики для риск-фильтра одним read-only снимком.
func (r *TradeRepository) RiskCounters(ctx context.Context) (out models.RiskCounters, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("TradeRepository.RiskCounters: %w", err)
		}
	}()
	since := startOfDay(r.now())
	err = r.db.RunReadOnly(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		var e error
		if out.TradesToday, e = tradesSince(ctxTx, tx, since); e != nil {
			return e
		}
		if out.DailyPnL, e = pnlSince(ctxTx, tx, since); e != nil {
			return e
		}
		out.ConsecutiveLosses, out.LastCloseTime, e = recentLossStreak(ctxTx, tx)
		return e
	})
	return out, err
}

// tradesSince сделки с входом не раньше since.
func tradesSince(ctx context.Context, q db.Transaction, since time.Time) (n int, err error) {
	if err = q.QueryRow(ctx, tradesSinceSQL, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("trades since: %w", err)
	}
	return n, nil
}

// pnlSince сумма pnl сделок, открытых не раньше since.
func pnlSince(ctx context.Context, q db.Transaction, since time.Time) (pnl float64, err error) {
	if err = q.QueryRow(ctx, pnlSinceSQL, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("pnl since: %w", err)
	}
	return pnl, nil
}

// recentLossStreak серия убытков в хвосте истории и время последнего закрытия.
func recentLossStreak(ctx context.Context, q db.Transaction) (int, *time.Time, error) {
	rows, err := q.Query(ctx, recentClosesSQL, lossStreakWindow)
	if err != nil {
		return 0, nil, fmt.Errorf("recent closes: %w", err)
	}
	defer rows.Close()

	var closes []closedTrade
	for rows.Next() {
		var c closedTrade
		if err = rows.Scan(&c.PnL, &c.ExitTime); err != nil {
			return 0, nil, fmt.Errorf("recent closes: %w", err)
		}
		closes = append(closes, c)
	}
	if err = rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("recent closes: %w", err)
	}
	n, last := lossStreak(closes)
	return n, last, nil
}

type closedTrade struct {
	PnL      *float64
	ExitTime *time.Time
}

// lossStreak closes идут от последнего закрытия к старым. pnl <= 0 убыток,
// пустой pnl обрывает серию.
func lossStreak(closes []closedTrade) (int, *time.Time) {
	var (
		n    int
		last *time.Time
	)
	for _, c := range closes {
		if last == nil && c.ExitTime != nil {
			t := c.ExitTime.UTC()
			last = &t
		}
		if c.PnL == nil || *c.PnL > 0 {
			break
		}
		n++
	}
	return n, last
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
