package relay

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability/logctx"
)

// LogForwarder writes events to the log instead of a broker. It is used when no
// brokers are configured so local runs still show the event stream.
type LogForwarder struct {
	log observability.Logger
}

func NewLogForwarder(logger observability.Logger) *LogForwarder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogForwarder{log: logger}
}

func (f *LogForwarder) Forward(ctx context.Context, e domoutbox.Event) error {
	logctx.FromOr(ctx, f.log).Info("event_forwarded",
		observability.F("event", e.EventName()),
		observability.F("payload", e),
	)
	return nil
}
