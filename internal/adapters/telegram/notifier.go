package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

// digestScenario is the shock reported in the digest headline
const digestScenario = "drop_10_percent"

const maxListedUsers = 5

// Notifier sends risk digests to the configured chats
type Notifier struct {
	bot       *Bot
	chatIDs   []int64
	threshold int
	log       *logger.Logger
}

// NewNotifier creates a notifier. threshold below 1 is treated as 1.
func NewNotifier(bot *Bot, chatIDs []int64, threshold int) *Notifier {
	if threshold < 1 {
		threshold = 1
	}
	return &Notifier{
		bot:       bot,
		chatIDs:   chatIDs,
		threshold: threshold,
		log:       logger.Get().With("component", "telegram_notifier"),
	}
}

// ShouldNotify reports whether the analysis crosses the alert threshold,
// either by at-risk users or by liquidations in the 10% shock.
func (n *Notifier) ShouldNotify(a *healthfactor.Analysis) bool {
	if a == nil {
		return false
	}
	if a.Summary.UsersAtRisk >= n.threshold {
		return true
	}
	if sim, ok := a.Simulation[digestScenario]; ok && sim != nil {
		return sim.UsersLiquidatable >= n.threshold
	}
	return false
}

// NotifyAnalysis sends the digest to every chat. Below the threshold it is a no-op.
func (n *Notifier) NotifyAnalysis(ctx context.Context, a *healthfactor.Analysis) error {
	if !n.ShouldNotify(a) {
		return nil
	}

	text := FormatDigest(a)
	var merr errors.MultiError
	for _, chatID := range n.chatIDs {
		if err := n.bot.SendMessageWithContext(ctx, chatID, text); err != nil {
			merr.Add(errors.Wrapf(err, "chat %d", chatID))
		}
	}

	n.log.Infow("Risk digest sent",
		"chain_id", a.Summary.ChainID,
		"chats", len(n.chatIDs),
		"failed", len(merr.Errors),
	)
	return merr.ToError()
}

// FormatDigest renders an analysis as a Markdown message
func FormatDigest(a *healthfactor.Analysis) string {
	s := a.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "*Lending risk: %s*\n", s.ChainID)
	fmt.Fprintf(&b, "_%s_\n\n", s.DataSource.SnapshotTimeUTC.Format("2006-01-02 15:04 UTC"))

	fmt.Fprintf(&b, "Users with debt: %s\n", humanize.Comma(int64(s.UsersWithDebt)))
	fmt.Fprintf(&b, "At risk (HF 1.0-1.5): *%s*\n", humanize.Comma(int64(s.UsersAtRisk)))
	if s.UsersExcluded > 0 {
		fmt.Fprintf(&b, "Excluded (HF < 1.0): %s\n", humanize.Comma(int64(s.UsersExcluded)))
	}
	fmt.Fprintf(&b, "Collateral: %s  Debt: %s\n", usd(s.TotalCollateralUSD), usd(s.TotalDebtUSD))

	if len(s.AtRiskUsers) > 0 {
		b.WriteString("\nLowest health factors:\n")
		for i, u := range s.AtRiskUsers {
			if i == maxListedUsers {
				fmt.Fprintf(&b, "... and %s more\n", humanize.Comma(int64(len(s.AtRiskUsers)-maxListedUsers)))
				break
			}
			fmt.Fprintf(&b, "`%s` %s, debt %s\n", shortAddress(u.UserAddress), u.HealthFactor.StringFixed(3), usd(u.TotalDebtUSD))
		}
	}

	if sim, ok := a.Simulation[digestScenario]; ok && sim != nil {
		fmt.Fprintf(&b, "\n%s -%s%%: *%s* liquidatable, %s debt at risk, ~%s liquidator profit\n",
			sim.AssetSymbol,
			sim.PriceDropPercent.String(),
			humanize.Comma(int64(sim.UsersLiquidatable)),
			usd(sim.TotalDebtAtRiskUSD),
			usd(sim.EstimatedLiquidatorProfitUSD),
		)
	}
	return b.String()
}

func usd(v decimal.Decimal) string {
	f, _ := v.Round(0).Float64()
	return "$" + humanize.CommafWithDigits(f, 0)
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
