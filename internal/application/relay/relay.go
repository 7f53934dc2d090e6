package relay

import (
	"context"
	"fmt"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	workerService = "relay_worker"
	spanPrefix    = "Relay."
	useCase       = "relay.forward"
)

// Forwarder ships one domain event to a system outside the process.
type Forwarder interface {
	Forward(ctx context.Context, e domoutbox.Event) error
}

// ForwardedEvents lists the event names the relay subscribes to.
func ForwardedEvents() []string {
	return []string{
		domorder.OrderCreatedEvent{}.EventName(),
		domorder.CheckoutFailedEvent{}.EventName(),
		domorder.StockCompensationFailedEvent{}.EventName(),
	}
}

type Worker struct {
	subscriber domoutbox.Subscriber
	forwarder  Forwarder
	peer       string

	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

// New builds a relay worker. peer names the forwarder's destination in metrics
// ("kafka", "log").
func New(subscriber domoutbox.Subscriber, forwarder Forwarder, peer string, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	if peer == "" {
		peer = "forwarder"
	}
	m := tel.Metrics()
	return &Worker{
		subscriber:   subscriber,
		forwarder:    forwarder,
		peer:         peer,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.forwarder == nil {
		return
	}
	for _, name := range ForwardedEvents() {
		w.subscriber.Subscribe(name, w.handle)
	}
}

func (w *Worker) handle(ctx context.Context, e domoutbox.Event) (err error) {
	name := e.EventName()
	ctx, span := w.tracer.Start(ctx, spanPrefix+"Forward",
		attribute.String("use_case", useCase),
		attribute.String("event", name),
		attribute.String("peer", w.peer),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("event", name),
	)
	if key := domoutbox.KeyOf(e); key != "" {
		logger = logger.With(observability.F("event_key", key))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		w.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)

		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	fstart := time.Now()
	ferr := w.forwarder.Forward(ctx, e)
	w.observeExternal(name, fstart, ferr)
	if ferr != nil {
		outcome, status = "error", "FORWARD_FAILED"
		if ctx.Err() != nil {
			status = "CONTEXT_CANCELED"
		}
		return fmt.Errorf("relay: forward %s: %w", name, ferr)
	}
	return nil
}

func (w *Worker) observeExternal(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	w.extCounter.Add(1,
		observability.L("peer", w.peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	w.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", w.peer),
		observability.L("endpoint", endpoint),
	)
}
