package replay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// Publisher forwards replay events to an EventBus. Publishing is best
// effort: failures are logged and the replay continues.
type Publisher struct {
	bus     domain.EventBus
	channel string
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. A nil bus discards every event.
func NewPublisher(bus domain.EventBus, channel string, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:     bus,
		channel: channel,
		logger:  logger,
	}
}

// StreamKey is the Redis stream holding the events of one run.
func StreamKey(runID string) string {
	return "replay:" + runID
}

// Publish sends evt on the live channel and appends it to the run stream.
func (p *Publisher) Publish(ctx context.Context, evt domain.Event) {
	if p == nil || p.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.WarnContext(ctx, "replay: marshal event failed",
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, p.channel, payload); err != nil {
		p.logger.WarnContext(ctx, "replay: publish event failed",
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, StreamKey(evt.RunID), payload); err != nil {
		p.logger.WarnContext(ctx, "replay: stream append failed",
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}
