// Package ingestion feeds externally published market prices into the
// observation engine over NATS. Ticks are ephemeral by design: replaying an
// old price would re-accumulate deviation value, so plain pub/sub is used
// rather than a replayable stream.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"QuonkLedger/internal/core"
	"QuonkLedger/internal/money"
	"QuonkLedger/internal/observability"
)

// PriceSubjectPrefix is the subject space for price ticks; the last token
// is the ticker, e.g. quonk.prices.ABC.
const PriceSubjectPrefix = "quonk.prices"

// PriceTick is the wire payload of one observed market price.
type PriceTick struct {
	Ticker string       `json:"ticker"`
	Price  money.Amount `json:"price"`
}

// PriceSubscriber applies published price ticks to every open position in
// the ticker. Malformed ticks and tickers nobody holds are counted and
// dropped; the subscription never stops on a bad message.
type PriceSubscriber struct {
	conn    *nats.Conn
	engine  *core.Engine
	metrics *observability.Metrics
	logger  zerolog.Logger
	sub     *nats.Subscription
}

func NewPriceSubscriber(conn *nats.Conn, engine *core.Engine, metrics *observability.Metrics, logger zerolog.Logger) *PriceSubscriber {
	return &PriceSubscriber{
		conn:    conn,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe starts consuming quonk.prices.> until Drain is called.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	sub, err := ps.conn.Subscribe(PriceSubjectPrefix+".>", func(msg *nats.Msg) {
		ps.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", PriceSubjectPrefix, err)
	}
	ps.sub = sub
	ps.logger.Info().Str("subject", PriceSubjectPrefix+".>").Msg("price feed subscribed")
	return nil
}

func (ps *PriceSubscriber) handle(ctx context.Context, msg *nats.Msg) {
	ps.metrics.TicksReceived.Inc()

	var tick PriceTick
	if err := json.Unmarshal(msg.Data, &tick); err != nil {
		ps.metrics.TicksDropped.WithLabelValues("decode").Inc()
		ps.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed price tick")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(tick.Ticker))
	if ticker == "" {
		// Fall back to the subject's last token.
		if i := strings.LastIndexByte(msg.Subject, '.'); i >= 0 {
			ticker = strings.ToUpper(msg.Subject[i+1:])
		}
	}
	if ticker == "" || tick.Price.IsZero() || tick.Price.IsNegative() {
		ps.metrics.TicksDropped.WithLabelValues("decode").Inc()
		ps.logger.Warn().Str("subject", msg.Subject).Msg("dropping unusable price tick")
		return
	}

	observed, err := ps.engine.ObserveTicker(ctx, ticker, tick.Price)
	if err != nil {
		ps.metrics.TicksDropped.WithLabelValues("observe").Inc()
		ps.logger.Warn().Err(err).Str("ticker", ticker).Msg("price tick partially applied")
	}
	if observed > 0 {
		ps.metrics.ObservationsApplied.Add(float64(observed))
	}
	ps.logger.Debug().Str("ticker", ticker).Stringer("price", tick.Price).
		Int("positions", observed).Msg("price tick applied")
}

// Drain flushes and removes the subscription.
func (ps *PriceSubscriber) Drain() error {
	if ps.sub == nil {
		return nil
	}
	return ps.sub.Drain()
}

// PricePublisher publishes price ticks for subscribers to observe.
type PricePublisher struct {
	conn *nats.Conn
}

func NewPricePublisher(conn *nats.Conn) *PricePublisher {
	return &PricePublisher{conn: conn}
}

func (pp *PricePublisher) Publish(ticker string, price money.Amount) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	data, err := json.Marshal(PriceTick{Ticker: ticker, Price: price})
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", PriceSubjectPrefix, ticker)
	if err := pp.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
