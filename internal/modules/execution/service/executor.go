package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
)

type Requester interface {
	Request(ctx context.Context, payload map[string]any) (*derivws.Response, error)
}

type ExecutorOptions struct {
	Currency          string
	ContractType      string // rise_fall | multiplier
	Multiplier        config.MultiplierConfig
	PollInterval      time.Duration
	RiseFallTimeout   time.Duration
	MultiplierTimeout time.Duration
}

func NewExecutorOptions(cfg *config.Config) ExecutorOptions {
	return ExecutorOptions{
		Currency:          cfg.Trading.Currency,
		ContractType:      cfg.Trading.ContractType,
		Multiplier:        cfg.Trading.Multiplier,
		PollInterval:      config.Seconds(cfg.Execution.PollIntervalSec),
		RiseFallTimeout:   config.Seconds(cfg.Execution.RiseFallTimeoutSec),
		MultiplierTimeout: config.Seconds(cfg.Execution.MultiplierTimeoutSec),
	}
}

// Executor proposal -> buy -> ожидание расчёта через proposal_open_contract.
type Executor struct {
	r    Requester
	opts ExecutorOptions
	log  *zap.Logger
	now  func() time.Time
}

func NewExecutor(r Requester, opts ExecutorOptions, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.RiseFallTimeout <= 0 {
		opts.RiseFallTimeout = 180 * time.Second
	}
	if opts.MultiplierTimeout <= 0 {
		opts.MultiplierTimeout = 24 * time.Hour
	}
	if opts.ContractType == "" {
		opts.ContractType = config.ContractRiseFall
	}
	return &Executor{r: r, opts: opts, log: log.With(zap.String("component", "executor")), now: time.Now}
}

func (e *Executor) IsMultiplier() bool { return e.opts.ContractType == config.ContractMultiplier }

// ContractLabel человекочитаемый тип контракта для событий.
func (e *Executor) ContractLabel() string {
	if e.IsMultiplier() {
		return "Multiplier"
	}
	return "Rise/Fall 1m"
}

// Execute исполняет намерение контрактом из конфига. multiplier
// используется только для multiplier-контрактов.
func (e *Executor) Execute(ctx context.Context, intent models.TradeIntent, multiplier int) (res models.ExecutedTrade, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trade.execute")
	defer func() {
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
		}
		span.Finish()
	}()
	span.SetTag("symbol", intent.Symbol)
	span.SetTag("side", string(intent.Side))
	span.SetTag("contract_type", e.opts.ContractType)

	if e.IsMultiplier() {
		return e.ExecuteMultiplier(ctx, intent, multiplier)
	}
	return e.ExecuteRiseFall(ctx, intent)
}

// ExecuteRiseFall одноминутный CALL/PUT.
func (e *Executor) ExecuteRiseFall(ctx context.Context, intent models.TradeIntent) (models.ExecutedTrade, error) {
	ct := intent.Side.Contract()
	if ct == "" {
		return models.ExecutedTrade{}, errors.Wrapf(errUnsupportedSide, "side=%s", intent.Side)
	}
	proposal := map[string]any{
		"proposal":      1,
		"amount":        intent.Stake,
		"basis":         "stake",
		"contract_type": ct,
		"currency":      e.opts.Currency,
		"duration":      1,
		"duration_unit": "m",
		"symbol":        intent.Symbol,
	}
	return e.run(ctx, intent, proposal, nil, e.opts.RiseFallTimeout)
}

// ExecuteMultiplier MULTUP/MULTDOWN с limit_order на TP/SL.
func (e *Executor) ExecuteMultiplier(ctx context.Context, intent models.TradeIntent, multiplier int) (models.ExecutedTrade, error) {
	ct := intent.Side.MultiplierContract()
	if ct == "" {
		return models.ExecutedTrade{}, errors.Wrapf(errUnsupportedSide, "side=%s", intent.Side)
	}
	if multiplier < 1 {
		return models.ExecutedTrade{}, errors.Wrapf(errMultiplierNotPicked, "symbol=%s multiplier=%d", intent.Symbol, multiplier)
	}

	m := e.opts.Multiplier
	dur, unit := m.Duration, strings.ToLower(m.DurationUnit)
	if unit == "m" || unit == "h" {
		dur, unit = helper.DurationSeconds(m.Duration, unit), "s"
	}
	proposal := map[string]any{
		"proposal":      1,
		"amount":        intent.Stake,
		"basis":         "stake",
		"contract_type": ct,
		"currency":      e.opts.Currency,
		"duration":      dur,
		"duration_unit": unit,
		"symbol":        intent.Symbol,
		"multiplier":    multiplier,
	}

	var limit map[string]any
	if intent.TakeProfit != nil || intent.StopLoss != nil {
		limit = map[string]any{}
		if intent.TakeProfit != nil {
			limit["take_profit"] = helper.RoundUnits(math.Max(0.01, *intent.TakeProfit))
		}
		if intent.StopLoss != nil {
			limit["stop_loss"] = helper.RoundUnits(math.Max(0.01, *intent.StopLoss))
		}
	}
	return e.run(ctx, intent, proposal, limit, e.opts.MultiplierTimeout)
}

type proposalFrame struct {
	Proposal *struct {
		ID       string  `json:"id"`
		AskPrice float64 `json:"ask_price"`
	} `json:"proposal"`
}

type buyFrame struct {
	Buy *struct {
		ContractID int64   `json:"contract_id"`
		BuyPrice   float64 `json:"buy_price"`
	} `json:"buy"`
}

type openContractFrame struct {
	Contract *struct {
		IsSold int      `json:"is_sold"`
		Profit *float64 `json:"profit"`
		Payout *float64 `json:"payout"`
	} `json:"proposal_open_contract"`
}

func (e *Executor) run(ctx context.Context, intent models.TradeIntent, proposal, limit map[string]any, timeout time.Duration) (models.ExecutedTrade, error) {
	proposalID, err := e.propose(ctx, proposal)
	if err != nil {
		return models.ExecutedTrade{}, err
	}

	contractID, buyPrice, err := e.buy(ctx, proposalID, intent.Stake, limit)
	if err != nil {
		return models.ExecutedTrade{}, err
	}
	if buyPrice == 0 {
		buyPrice = intent.Stake
	}
	e.log.Info("[EXEC] contract bought",
		zap.String("symbol", intent.Symbol),
		zap.String("contract_type", proposal["contract_type"].(string)),
		zap.Int64("contract_id", contractID),
		zap.Float64("buy_price", buyPrice),
	)

	profit, payout, err := e.waitSettlement(ctx, contractID, timeout)
	if err != nil {
		return models.ExecutedTrade{ContractID: contractID, BuyPrice: buyPrice}, err
	}
	return models.ExecutedTrade{
		ContractID: contractID,
		Profit:     profit,
		BuyPrice:   buyPrice,
		Payout:     payout,
		IsWin:      profit > 0,
	}, nil
}

func (e *Executor) propose(ctx context.Context, payload map[string]any) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "exec.proposal")
	defer span.Finish()

	resp, err := e.r.Request(ctx, payload)
	if err != nil {
		ext.Error.Set(span, true)
		return "", errors.Wrap(err, "proposal")
	}
	if perr := resp.Err(); perr != nil {
		ext.Error.Set(span, true)
		return "", errors.Wrap(perr, "proposal_error")
	}
	var f proposalFrame
	if err := resp.Decode(&f); err != nil {
		return "", err
	}
	if f.Proposal == nil || f.Proposal.ID == "" {
		ext.Error.Set(span, true)
		return "", errProposalMissingID
	}
	span.SetTag("proposal_id", f.Proposal.ID)
	return f.Proposal.ID, nil
}

func (e *Executor) buy(ctx context.Context, proposalID string, stake float64, limit map[string]any) (int64, float64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "exec.buy")
	defer span.Finish()

	payload := map[string]any{"buy": proposalID, "price": stake}
	if limit != nil {
		payload["limit_order"] = limit
	}
	resp, err := e.r.Request(ctx, payload)
	if err != nil {
		ext.Error.Set(span, true)
		return 0, 0, errors.Wrap(err, "buy")
	}
	if perr := resp.Err(); perr != nil {
		ext.Error.Set(span, true)
		return 0, 0, errors.Wrap(perr, "buy_error")
	}
	var f buyFrame
	if err := resp.Decode(&f); err != nil {
		return 0, 0, err
	}
	if f.Buy == nil || f.Buy.ContractID == 0 {
		ext.Error.Set(span, true)
		return 0, 0, errBuyMissingContract
	}
	span.SetTag("contract_id", f.Buy.ContractID)
	return f.Buy.ContractID, f.Buy.BuyPrice, nil
}

// waitSettlement опрашивает контракт до is_sold. Транспортные сбои
// после покупки не прерывают ожидание: контракт уже куплен.
func (e *Executor) waitSettlement(ctx context.Context, contractID int64, timeout time.Duration) (float64, float64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "exec.poll")
	defer span.Finish()
	span.SetTag("contract_id", contractID)

	started := e.now()
	polls := 0
	for {
		if waited := e.now().Sub(started); waited > timeout {
			ext.Error.Set(span, true)
			return 0, 0, &SettlementTimeout{ContractID: contractID, Waited: waited}
		}

		polls++
		resp, err := e.r.Request(ctx, map[string]any{"proposal_open_contract": 1, "contract_id": contractID})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, 0, ctx.Err()
			}
			e.log.Warn("[EXEC] poll failed, retrying", zap.Int64("contract_id", contractID), zap.Error(err))
		case resp.Err() != nil:
			ext.Error.Set(span, true)
			return 0, 0, errors.Wrap(resp.Err(), "poc_error")
		default:
			var f openContractFrame
			if err := resp.Decode(&f); err != nil {
				return 0, 0, err
			}
			if f.Contract != nil && f.Contract.IsSold != 0 {
				var profit, payout float64
				if f.Contract.Profit != nil {
					profit = *f.Contract.Profit
				}
				if f.Contract.Payout != nil {
					payout = *f.Contract.Payout
				}
				span.SetTag("polls", polls)
				return profit, payout, nil
			}
		}

		t := time.NewTimer(e.opts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, 0, ctx.Err()
		case <-t.C:
		}
	}
}
