package feed

import (
	"context"
	"fmt"
	"time"

	"ibfeed/internal/domain"
	"ibfeed/internal/ports"
)

// Broker-aggregated real-time bars are not served below five seconds; any
// finer timeframe has to be built from ticks.
const (
	aggBarMinTimeframe   = domain.TimeframeSeconds
	aggBarMinCompression = 5
)

// Outcome is the result of one production step.
type Outcome int

const (
	// OutcomeDelivered means one bar was appended to the sink.
	OutcomeDelivered Outcome = iota
	// OutcomeNoData means no bar is ready yet; the caller should poll again
	// after its configured wait.
	OutcomeNoData
	// OutcomeEndOfStream means the feed will never produce another bar.
	OutcomeEndOfStream
)

// state of the production state machine.
type state int

const (
	stFromSeed state = iota // draining the external seed source
	stStart                 // transient: decide and issue the first request
	stLive                  // consuming the live subscription
	stHistBackfill          // draining a historical download
	stOver                  // terminal: nothing more can be produced
)

// Config assembles a feed. Gateway, Sink and Logger are required.
type Config struct {
	// Identifier is the dash-delimited instrument specification.
	Identifier string
	// TradeIdentifier optionally names a different instrument to trade on
	// (e.g. a CFD priced off the primary instrument). Empty means trade the
	// primary instrument.
	TradeIdentifier string
	Defaults        Defaults

	Timeframe   domain.Timeframe
	Compression int

	// UseAggregatedLiveBars selects broker-aggregated real-time bars over
	// raw ticks. Ignored for timeframes finer than the aggregated minimum.
	UseAggregatedLiveBars bool
	// HistoricalOnly makes the feed stop after the first download.
	HistoricalOnly bool
	// WhatToShow is the quote kind for data requests; when empty it is
	// inferred as BID for CASH instruments and TRADES otherwise.
	WhatToShow string
	UseRTH     bool
	// BackfillAtStart requests the maximum possible history before going live.
	BackfillAtStart bool
	// BackfillOnReconnect requests the gap after a disconnection cycle.
	// Only meaningful for gateways that surface disconnects; the websocket
	// gateway reconnects internally and keeps its channel open.
	BackfillOnReconnect bool
	// AllowLateThrough delivers bars even when they are timestamped earlier
	// than the last delivered bar.
	AllowLateThrough bool
	// HistoricalTimezoneOffsetHours corrects historical bar timestamps.
	// When nil the machine's own UTC offset is used.
	HistoricalTimezoneOffsetHours *float64

	// FromDate/ToDate bound a historical-only download; nil is open-ended.
	FromDate   *time.Time
	ToDate     *time.Time
	SessionEnd string

	// Seed optionally backfills from an external source before broker data.
	Seed ports.SeedFeed

	Gateway ports.BrokerGateway
	Sink    ports.BarSink
	Logger  ports.Logger

	// OnStatus receives lifecycle notifications. Optional.
	OnStatus func(domain.FeedStatus)
}

// Feed sequences seed backfill, historical download and live streaming into
// one ordered bar stream delivered to the sink. All methods must be called
// from a single consuming goroutine; the gateway channels are the only
// concurrency boundary.
type Feed struct {
	cfg  Config
	log  ports.Logger
	norm *normalizer

	desc      *domain.ContractDescriptor
	tradeDesc *domain.ContractDescriptor

	contract      *domain.Contract
	tradeContract *domain.Contract

	state      state
	useTicks   bool
	whatToShow string

	qhist <-chan ports.RawBar
	qlive <-chan ports.RawBar
	qtick <-chan ports.RawTick
}

// New parses the identifiers and assembles a feed. Grammar errors in either
// identifier surface here, before any broker interaction.
func New(cfg Config) (*Feed, error) {
	if cfg.Gateway == nil || cfg.Sink == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: gateway, sink and logger are required", ports.ErrConfigurationError)
	}
	if cfg.Identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", ports.ErrConfigurationError)
	}

	desc, err := ParseContract(cfg.Identifier, cfg.Defaults)
	if err != nil {
		return nil, err
	}
	tradeDesc, err := ParseContract(cfg.TradeIdentifier, cfg.Defaults)
	if err != nil {
		return nil, err
	}

	whatToShow := cfg.WhatToShow
	if whatToShow == "" {
		if desc.SecurityType == domain.SecTypeCash {
			whatToShow = "BID"
		} else {
			whatToShow = "TRADES"
		}
	}

	useTicks := !cfg.UseAggregatedLiveBars
	if !domain.AtLeast(cfg.Timeframe, cfg.Compression, aggBarMinTimeframe, aggBarMinCompression) {
		useTicks = true
	}

	return &Feed{
		cfg:        cfg,
		log:        cfg.Logger,
		norm:       newNormalizer(cfg.AllowLateThrough, cfg.HistoricalTimezoneOffsetHours),
		desc:       desc,
		tradeDesc:  tradeDesc,
		state:      stOver,
		useTicks:   useTicks,
		whatToShow: whatToShow,
	}, nil
}

// Descriptor returns the parsed primary contract descriptor.
func (f *Feed) Descriptor() *domain.ContractDescriptor { return f.desc }

// Contract returns the resolved primary contract, nil before Start.
func (f *Feed) Contract() *domain.Contract { return f.contract }

// TradeContract returns the contract orders should target. It equals the
// primary contract unless a trade identifier was configured.
func (f *Feed) TradeContract() *domain.Contract { return f.tradeContract }

// IsLive reports whether the feed delivers real-time data at some point.
func (f *Feed) IsLive() bool { return !f.cfg.HistoricalOnly }

// HasLiveData reports whether a live subscription is currently held.
func (f *Feed) HasLiveData() bool { return f.qlive != nil || f.qtick != nil }

// Start resolves the contracts and primes the state machine. A resolution
// failure emits DISCONNECTED and leaves the feed non-functional until it is
// started again.
func (f *Feed) Start(ctx context.Context) error {
	f.contract = nil
	f.tradeContract = nil
	f.qhist, f.qlive, f.qtick = nil, nil, nil

	if f.cfg.Seed != nil {
		f.state = stFromSeed
	} else {
		f.state = stStart
	}

	f.notify(domain.StatusConnected)

	contract, err := f.resolveOne(ctx, f.desc)
	if err != nil {
		f.contract = nil
		f.state = stOver
		f.notify(domain.StatusDisconnected)
		return err
	}
	f.contract = contract

	if f.tradeDesc == nil {
		// no different trading instrument, default to the data instrument
		f.tradeContract = f.contract
	} else {
		tradeContract, err := f.resolveOne(ctx, f.tradeDesc)
		if err != nil {
			f.contract = nil
			f.state = stOver
			f.notify(domain.StatusDisconnected)
			return err
		}
		f.tradeContract = tradeContract
	}

	f.log.Info(ctx, "feed started", map[string]interface{}{
		"symbol":     f.contract.Symbol,
		"secType":    string(f.contract.SecurityType),
		"exchange":   f.contract.Exchange,
		"useTicks":   f.useTicks,
		"whatToShow": f.whatToShow,
	})

	if f.state == stStart {
		f.stStart(ctx)
	}
	return nil
}

// Stop releases the gateway subscriptions and parks the machine. No bar is
// produced after Stop returns.
func (f *Feed) Stop(ctx context.Context) error {
	f.state = stOver
	f.qhist, f.qlive, f.qtick = nil, nil, nil
	if err := f.cfg.Gateway.Stop(ctx); err != nil {
		f.log.Error(ctx, err, "gateway stop failed")
		return err
	}
	return nil
}

// Produce runs one production step. It never blocks: channel checks are
// non-blocking and an idle live subscription simply reports OutcomeNoData,
// leaving the poll cadence to the caller.
func (f *Feed) Produce(ctx context.Context) Outcome {
	if f.contract == nil || f.state == stOver {
		return OutcomeEndOfStream
	}

	for {
		switch f.state {
		case stLive:
			if err := f.subscribeLive(ctx); err != nil {
				f.log.Error(ctx, err, "live subscription failed")
				return OutcomeNoData
			}
			if f.useTicks {
				select {
				case tick, ok := <-f.qtick:
					if !ok {
						return OutcomeNoData
					}
					last, haveLast := f.lastTime()
					if bar, accepted := f.norm.fromTick(tick, last, haveLast); accepted {
						return f.deliver(ctx, bar)
					}
					continue // late tick dropped, try the next one
				default:
					return OutcomeNoData
				}
			}
			select {
			case raw, ok := <-f.qlive:
				if !ok {
					return OutcomeNoData
				}
				last, haveLast := f.lastTime()
				if bar, accepted := f.norm.fromLiveBar(raw, last, haveLast); accepted {
					return f.deliver(ctx, bar)
				}
				continue
			default:
				return OutcomeNoData
			}

		case stHistBackfill:
			select {
			case raw, ok := <-f.qhist:
				if ok {
					last, haveLast := f.lastTime()
					if bar, accepted := f.norm.fromHistorical(raw, last, haveLast); accepted {
						return f.deliver(ctx, bar)
					}
					continue // rejected as late, keep draining
				}
			default:
			}
			// Download exhausted (or momentarily empty, which the protocol
			// treats the same): hand over to live or finish.
			if !f.cfg.HistoricalOnly {
				f.notify(domain.StatusLive)
				f.state = stLive
				continue
			}
			f.notify(domain.StatusDisconnected)
			f.state = stOver
			return OutcomeEndOfStream

		case stFromSeed:
			bar, ok := f.cfg.Seed.Next()
			if !ok {
				// seed source is consumed, move on to broker data
				f.state = stStart
				continue
			}
			return f.deliver(ctx, bar)

		case stStart:
			f.stStart(ctx)
			continue

		default: // stOver
			return OutcomeEndOfStream
		}
	}
}

// stStart decides how the session begins: a bounded download for
// historical-only feeds, a catch-up download when backfilling at start, or
// straight to the live subscription.
func (f *Feed) stStart(ctx context.Context) {
	switch {
	case f.cfg.HistoricalOnly:
		f.notify(domain.StatusDelayed)
		f.requestHistorical(ctx, f.cfg.FromDate, f.cfg.ToDate)

	case f.cfg.BackfillAtStart:
		f.notify(domain.StatusDelayed)
		var begin *time.Time
		if last, ok := f.lastTime(); ok {
			begin = &last
		}
		f.requestHistorical(ctx, begin, nil)

	default:
		f.state = stLive
	}
}

// requestHistorical issues one download and moves to the backfill state. A
// request never yields a bar synchronously.
func (f *Feed) requestHistorical(ctx context.Context, begin, end *time.Time) {
	req := ports.HistoricalRequest{
		Begin:       begin,
		End:         end,
		Timeframe:   f.cfg.Timeframe,
		Compression: f.cfg.Compression,
		WhatToShow:  f.whatToShow,
		UseRTH:      f.cfg.UseRTH,
		TimeZoneID:  f.contract.TimeZone(),
		SessionEnd:  f.cfg.SessionEnd,
	}
	q, err := f.cfg.Gateway.RequestHistorical(ctx, f.contract, req)
	if err != nil {
		f.log.Error(ctx, err, "historical request failed", map[string]interface{}{
			"symbol": f.contract.Symbol,
		})
		f.state = stOver
		f.notify(domain.StatusDisconnected)
		return
	}
	f.qhist = q
	f.state = stHistBackfill
}

// subscribeLive (re)issues the live subscription. The gateway treats a
// repeated identical request as a no-op, so calling this on every live-state
// step is safe.
func (f *Feed) subscribeLive(ctx context.Context) error {
	if f.useTicks {
		q, err := f.cfg.Gateway.RequestLiveTicks(ctx, f.contract, f.whatToShow)
		if err != nil {
			return err
		}
		f.qtick = q
		return nil
	}
	q, err := f.cfg.Gateway.RequestLiveAggregatedBars(ctx, f.contract, f.whatToShow)
	if err != nil {
		return err
	}
	f.qlive = q
	return nil
}

func (f *Feed) deliver(ctx context.Context, bar domain.Bar) Outcome {
	if err := f.cfg.Sink.Append(bar); err != nil {
		f.log.Error(ctx, err, "sink append failed", map[string]interface{}{
			"time": bar.Time,
		})
		return OutcomeNoData
	}
	return OutcomeDelivered
}

func (f *Feed) lastTime() (time.Time, bool) {
	last, ok := f.cfg.Sink.Last()
	if !ok {
		return time.Time{}, false
	}
	return last.Time, true
}

func (f *Feed) resolveOne(ctx context.Context, desc *domain.ContractDescriptor) (*domain.Contract, error) {
	contracts, err := f.cfg.Gateway.ResolveContract(ctx, desc, 1)
	if err != nil {
		return nil, err
	}
	switch len(contracts) {
	case 1:
		return contracts[0], nil
	case 0:
		return nil, fmt.Errorf("%w: %s", ports.ErrContractNotFound, desc.Symbol)
	default:
		return nil, fmt.Errorf("%w: %s matched %d", ports.ErrAmbiguousContract, desc.Symbol, len(contracts))
	}
}

func (f *Feed) notify(status domain.FeedStatus) {
	f.log.Info(context.Background(), "feed status", map[string]interface{}{"status": status.String()})
	if f.cfg.OnStatus != nil {
		f.cfg.OnStatus(status)
	}
}
