package service

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
  id         BIGSERIAL PRIMARY KEY,
  ts         TIMESTAMPTZ NOT NULL,
  level      TEXT NOT NULL,
  type       TEXT NOT NULL,
  message    TEXT NOT NULL,
  data_json  JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS trades (
  id              TEXT PRIMARY KEY,
  symbol          TEXT NOT NULL,
  side            TEXT NOT NULL,
  status          TEXT NOT NULL DEFAULT 'open',
  contract_id     BIGINT,
  entry_time      TIMESTAMPTZ NOT NULL,
  entry_price     DOUBLE PRECISION NOT NULL,
  exit_time       TIMESTAMPTZ,
  exit_price      DOUBLE PRECISION,
  pnl             DOUBLE PRECISION,
  stake           DOUBLE PRECISION NOT NULL,
  score           INTEGER NOT NULL,
  reasons_json    TEXT NOT NULL,
  balance_before  DOUBLE PRECISION NOT NULL,
  balance_after   DOUBLE PRECISION,
  take_profit     DOUBLE PRECISION,
  stop_loss       DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS trades_entry_time_idx ON trades (entry_time DESC);
CREATE INDEX IF NOT EXISTS trades_exit_time_idx ON trades (exit_time DESC) WHERE exit_time IS NOT NULL;
`

const (
	insertEventSQL = `INSERT INTO events (ts, level, type, message, data_json) VALUES ($1, $2, $3, $4, $5)`

	listEventsSQL = `SELECT ts, level, type, message, data_json FROM events ORDER BY id DESC LIMIT $1`

	insertTradeSQL = `
INSERT INTO trades (
  id, symbol, side, status, contract_id, entry_time, entry_price, exit_time, exit_price, pnl,
  stake, score, reasons_json, balance_before, balance_after, take_profit, stop_loss
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	closeTradeSQL = `
UPDATE trades
SET status = 'closed', exit_time = $2, pnl = $3, balance_after = $4, contract_id = $5
WHERE id = $1`

	markUnknownSQL = `UPDATE trades SET status = 'unknown', contract_id = $2 WHERE id = $1`

	deleteTradeSQL = `DELETE FROM trades WHERE id = $1`

	listTradesSQL = `
SELECT id, symbol, side, status, contract_id, entry_time, entry_price, exit_time, exit_price, pnl,
       stake, score, reasons_json, balance_before, balance_after, take_profit, stop_loss
FROM trades ORDER BY entry_time DESC LIMIT $1`

	tradesSinceSQL = `SELECT COUNT(*) FROM trades WHERE entry_time >= $1`

	pnlSinceSQL = `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE entry_time >= $1 AND pnl IS NOT NULL`

	recentClosesSQL = `SELECT pnl, exit_time FROM trades WHERE exit_time IS NOT NULL ORDER BY exit_time DESC LIMIT $1`
)
