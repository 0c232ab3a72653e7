package notify

import (
	"context"
	"log/slog"
	"sort"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// LogGateway records deliveries in the structured log. It stands in for
// channels without a wired provider.
type LogGateway struct {
	channel domain.Channel
	logger  *slog.Logger
}

var _ ports.ChannelGateway = (*LogGateway)(nil)

// NewLogGateway builds a log-only gateway for channel.
func NewLogGateway(channel domain.Channel, logger *slog.Logger) *LogGateway {
	return &LogGateway{channel: channel, logger: logger}
}

func (g *LogGateway) Channel() domain.Channel { return g.channel }

func (g *LogGateway) Deliver(ctx context.Context, n domain.Notification, recipients []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if g.logger != nil {
		g.logger.Info("notification delivered",
			"channel", g.channel,
			"template", n.TemplateID,
			"title", n.Title,
			"recipients", len(recipients),
		)
	}
	return len(recipients), nil
}

// StaticDirectory is a subscriber directory backed by configuration.
type StaticDirectory map[string][]string

var _ ports.SubscriberDirectory = StaticDirectory(nil)

// SubscribersForSector returns the configured subscribers in sorted order.
func (d StaticDirectory) SubscribersForSector(_ context.Context, sector string) ([]string, error) {
	out := append([]string(nil), d[sector]...)
	sort.Strings(out)
	return out, nil
}
