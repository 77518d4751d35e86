package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/avalens/avalens/internal/domain"
)

// Event types emitted for generated insights. Operators select which of
// these reach their channels via the notify.events config list.
const (
	EventInsightHigh     = "insight.high"
	EventInsightCritical = "insight.critical"
)

// InsightAdapter forwards noteworthy insights to the notification channels.
// The generator only hands over high and critical severities; the event
// filter can narrow further.
type InsightAdapter struct {
	notifier *Notifier
}

// NewInsightAdapter creates an adapter over the given notifier.
func NewInsightAdapter(n *Notifier) *InsightAdapter {
	return &InsightAdapter{notifier: n}
}

// InsightGenerated formats and dispatches one insight. Delivery failures are
// logged by the notifier; they never affect the generation pipeline.
func (a *InsightAdapter) InsightGenerated(ctx context.Context, ins *domain.Insight) {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(ins.Severity)), ins.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "Wallet %s\n%s", shortAddress(ins.WalletAddress), ins.Summary)
	if len(ins.Recommendations) > 0 {
		fmt.Fprintf(&b, "\n\nTop recommendation: %s", ins.Recommendations[0].Action)
	}

	_ = a.notifier.Notify(ctx, "insight."+string(ins.Severity), title, b.String())
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
