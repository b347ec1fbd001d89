package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
)

// fakeBroker отвечает по ключу запроса; poc отдаёт по очереди, последний повторяется.
type fakeBroker struct {
	mu       sync.Mutex
	proposal string
	buy      string
	poc      []string
	pocErrs  int // столько первых опросов завершатся транспортной ошибкой
	payloads []map[string]any
}

func (b *fakeBroker) Request(_ context.Context, payload map[string]any) (*derivws.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)

	var raw string
	switch {
	case payload["proposal"] != nil:
		raw = b.proposal
	case payload["buy"] != nil:
		raw = b.buy
	case payload["proposal_open_contract"] != nil:
		if b.pocErrs > 0 {
			b.pocErrs--
			return nil, derivws.ErrRequestTimeout
		}
		raw = b.poc[0]
		if len(b.poc) > 1 {
			b.poc = b.poc[1:]
		}
	default:
		return nil, errors.New("unexpected request")
	}
	return derivws.ParseFrame([]byte(raw))
}

func (b *fakeBroker) sent(key string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, p := range b.payloads {
		if p[key] != nil {
			out = append(out, p)
		}
	}
	return out
}

func fastOptions(contractType string) ExecutorOptions {
	return ExecutorOptions{
		Currency:          "USD",
		ContractType:      contractType,
		Multiplier:        config.Default().Trading.Multiplier,
		PollInterval:      time.Millisecond,
		RiseFallTimeout:   time.Second,
		MultiplierTimeout: time.Second,
	}
}

const (
	okProposal = `{"msg_type":"proposal","proposal":{"id":"p-1","ask_price":10}}`
	okBuy      = `{"msg_type":"buy","buy":{"contract_id":777,"buy_price":10}}`
	notSold    = `{"msg_type":"proposal_open_contract","proposal_open_contract":{"is_sold":0}}`
)

func TestExecuteRiseFallWin(t *testing.T) {
	b := &fakeBroker{
		proposal: okProposal,
		buy:      okBuy,
		poc:      []string{notSold, `{"msg_type":"proposal_open_contract","proposal_open_contract":{"is_sold":1,"profit":9.5,"payout":19.5}}`},
	}
	ex := NewExecutor(b, fastOptions(config.ContractRiseFall), nil)

	res, err := ex.Execute(context.Background(), models.TradeIntent{Symbol: "R_75", Side: models.SideUp, Stake: 10}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutedTrade{ContractID: 777, Profit: 9.5, BuyPrice: 10, Payout: 19.5, IsWin: true}, res)

	p := b.sent("proposal")[0]
	assert.Equal(t, "CALL", p["contract_type"])
	assert.Equal(t, 1, p["duration"])
	assert.Equal(t, "m", p["duration_unit"])
	assert.Equal(t, "stake", p["basis"])
	assert.Equal(t, "USD", p["currency"])

	buy := b.sent("buy")[0]
	assert.Equal(t, "p-1", buy["buy"])
	assert.Equal(t, 10.0, buy["price"])
	assert.NotContains(t, buy, "limit_order")
	assert.Len(t, b.sent("proposal_open_contract"), 2)
}

func TestExecuteLossDefaultsMissingFields(t *testing.T) {
	b := &fakeBroker{
		proposal: okProposal,
		buy:      `{"msg_type":"buy","buy":{"contract_id":5}}`,
		poc:      []string{`{"msg_type":"proposal_open_contract","proposal_open_contract":{"is_sold":1}}`},
	}
	ex := NewExecutor(b, fastOptions(config.ContractRiseFall), nil)

	res, err := ex.Execute(context.Background(), models.TradeIntent{Symbol: "R_75", Side: models.SideDown, Stake: 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.BuyPrice)
	assert.Zero(t, res.Profit)
	assert.Zero(t, res.Payout)
	assert.False(t, res.IsWin)
	assert.Equal(t, "PUT", b.sent("proposal")[0]["contract_type"])
}

func TestExecuteMultiplierPayload(t *testing.T) {
	b := &fakeBroker{
		proposal: okProposal,
		buy:      okBuy,
		poc:      []string{`{"msg_type":"proposal_open_contract","proposal_open_contract":{"is_sold":1,"profit":-2.4}}`},
	}
	ex := NewExecutor(b, fastOptions(config.ContractMultiplier), nil)
	intent := models.TradeIntent{
		Symbol:     "R_50",
		Side:       models.SideDown,
		Stake:      10,
		TakeProfit: helper.Ptr(5.0),
		StopLoss:   helper.Ptr(0.004),
	}

	res, err := ex.Execute(context.Background(), intent, 40)
	require.NoError(t, err)
	assert.Equal(t, -2.4, res.Profit)

	p := b.sent("proposal")[0]
	assert.Equal(t, "MULTDOWN", p["contract_type"])
	assert.Equal(t, 900, p["duration"])
	assert.Equal(t, "s", p["duration_unit"])
	assert.Equal(t, 40, p["multiplier"])

	limit := b.sent("buy")[0]["limit_order"].(map[string]any)
	assert.Equal(t, int64(5), limit["take_profit"])
	// 0.004 поднимается до 0.01 и округляется до целых
	assert.Equal(t, int64(0), limit["stop_loss"])
}

func TestExecuteMultiplierNeedsMultiplier(t *testing.T) {
	ex := NewExecutor(&fakeBroker{}, fastOptions(config.ContractMultiplier), nil)
	_, err := ex.Execute(context.Background(), models.TradeIntent{Symbol: "R_50", Side: models.SideUp, Stake: 1}, 0)
	require.ErrorIs(t, err, errMultiplierNotPicked)
}

func TestExecuteErrors(t *testing.T) {
	cases := []struct {
		name     string
		proposal string
		buy      string
		poc      string
		want     string
	}{
		{"proposal error", `{"msg_type":"proposal","error":{"code":"ContractBuyValidationError","message":"bad"}}`, okBuy, notSold, "proposal_error"},
		{"proposal id missing", `{"msg_type":"proposal","proposal":{}}`, okBuy, notSold, "proposal_missing_id"},
		{"buy error", okProposal, `{"msg_type":"buy","error":{"code":"InsufficientBalance","message":"no money"}}`, notSold, "buy_error"},
		{"contract id missing", okProposal, `{"msg_type":"buy","buy":{"buy_price":1}}`, notSold, "buy_missing_contract_id"},
		{"poc error", okProposal, okBuy, `{"msg_type":"proposal_open_contract","error":{"code":"x","message":"y"}}`, "poc_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBroker{proposal: tc.proposal, buy: tc.buy, poc: []string{tc.poc}}
			ex := NewExecutor(b, fastOptions(config.ContractRiseFall), nil)
			_, err := ex.Execute(context.Background(), models.TradeIntent{Symbol: "R_75", Side: models.SideUp, Stake: 1}, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestExecuteSettlementTimeout(t *testing.T) {
	b := &fakeBroker{proposal: okProposal, buy: okBuy, poc: []string{notSold}}
	opts := fastOptions(config.ContractRiseFall)
	opts.RiseFallTimeout = 20 * time.Millisecond
	ex := NewExecutor(b, opts, nil)

	res, err := ex.Execute(context.Background(), models.TradeIntent{Symbol: "R_75", Side: models.SideUp, Stake: 1}, 0)
	require.ErrorIs(t, err, ErrSettlementTimeout)
	var st *SettlementTimeout
	require.ErrorAs(t, err, &st)
	assert.Equal(t, int64(777), st.ContractID)
	assert.Equal(t, int64(777), res.ContractID)
}

func TestPollSurvivesTransportErrors(t *testing.T) {
	b := &fakeBroker{
		proposal: okProposal,
		buy:      okBuy,
		pocErrs:  2,
		poc:      []string{`{"msg_type":"proposal_open_contract","proposal_open_contract":{"is_sold":1,"profit":1}}`},
	}
	ex := NewExecutor(b, fastOptions(config.ContractRiseFall), nil)

	res, err := ex.Execute(context.Background(), models.TradeIntent{Symbol: "R_75", Side: models.SideUp, Stake: 1}, 0)
	require.NoError(t, err)
	assert.True(t, res.IsWin)
}
