package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/pkg/logger"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	failFor int64
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	if msg.ChatID == f.failFor {
		return tgbotapi.Message{}, fmt.Errorf("chat not found")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func hf(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func testAnalysis(atRisk, liquidatable int) *healthfactor.Analysis {
	users := make([]healthfactor.UserHealthFactor, atRisk)
	for i := range users {
		users[i] = healthfactor.UserHealthFactor{
			UserAddress:  fmt.Sprintf("0x%040d", i),
			HealthFactor: hf("1.05"),
			TotalDebtUSD: decimal.NewFromInt(12500),
		}
	}
	return &healthfactor.Analysis{
		Summary: healthfactor.HealthFactorSummary{
			ChainID:            "ethereum",
			DataSource:         healthfactor.DataSource{SnapshotTimeUTC: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
			UsersWithDebt:      1234,
			UsersAtRisk:        atRisk,
			UsersExcluded:      3,
			TotalCollateralUSD: decimal.RequireFromString("1234567.89"),
			TotalDebtUSD:       decimal.NewFromInt(800000),
			AtRiskUsers:        users,
		},
		Simulation: healthfactor.SimulationScenario{
			"drop_10_percent": {
				PriceDropPercent:             decimal.NewFromInt(10),
				AssetSymbol:                  "WETH",
				UsersLiquidatable:            liquidatable,
				TotalDebtAtRiskUSD:           decimal.NewFromInt(50000),
				EstimatedLiquidatorProfitUSD: decimal.NewFromInt(1250),
			},
		},
	}
}

func newTestNotifier(s *fakeSender, chats []int64, threshold int) *Notifier {
	bot := newBot(s, Config{RateLimitRate: 1000, RateLimitBurst: 100}, logger.Get())
	return NewNotifier(bot, chats, threshold)
}

func TestShouldNotify(t *testing.T) {
	n := newTestNotifier(&fakeSender{}, nil, 3)

	assert.False(t, n.ShouldNotify(nil))
	assert.False(t, n.ShouldNotify(testAnalysis(2, 2)))
	assert.True(t, n.ShouldNotify(testAnalysis(3, 0)))
	assert.True(t, n.ShouldNotify(testAnalysis(0, 5)))

	noSim := testAnalysis(0, 0)
	noSim.Simulation = nil
	assert.False(t, n.ShouldNotify(noSim))
}

func TestNotifyAnalysisSendsToAllChats(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s, []int64{10, 20}, 1)

	require.NoError(t, n.NotifyAnalysis(context.Background(), testAnalysis(2, 1)))
	require.Len(t, s.sent, 2)
	assert.Equal(t, int64(10), s.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, s.sent[0].ParseMode)
}

func TestNotifyAnalysisBelowThreshold(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s, []int64{10}, 5)

	require.NoError(t, n.NotifyAnalysis(context.Background(), testAnalysis(1, 1)))
	assert.Empty(t, s.sent)
}

func TestNotifyAnalysisCollectsFailures(t *testing.T) {
	s := &fakeSender{failFor: 20}
	n := newTestNotifier(s, []int64{10, 20, 30}, 1)

	err := n.NotifyAnalysis(context.Background(), testAnalysis(1, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 20")
	assert.Len(t, s.sent, 2)
}

func TestFormatDigest(t *testing.T) {
	text := FormatDigest(testAnalysis(7, 4))

	assert.Contains(t, text, "*Lending risk: ethereum*")
	assert.Contains(t, text, "2025-03-01 12:00 UTC")
	assert.Contains(t, text, "Users with debt: 1,234")
	assert.Contains(t, text, "At risk (HF 1.0-1.5): *7*")
	assert.Contains(t, text, "Excluded (HF < 1.0): 3")
	assert.Contains(t, text, "Collateral: $1,234,568")
	assert.Contains(t, text, "`0x0000...0000` 1.050, debt $12,500")
	assert.Contains(t, text, "... and 2 more")
	assert.Contains(t, text, "WETH -10%: *4* liquidatable, $50,000 debt at risk, ~$1,250 liquidator profit")
}
