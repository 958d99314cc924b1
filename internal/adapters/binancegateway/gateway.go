// Package binancegateway implements the broker gateway port on top of the
// Binance futures API: contract resolution against exchange info, paginated
// historical kline downloads, and websocket streams for aggregated bars and
// trade ticks.
package binancegateway

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"ibfeed/internal/domain"
	"ibfeed/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	histPageLimit = 1500 // max klines per request
)

// Gateway implements the ports.BrokerGateway interface using the go-binance library.
type Gateway struct {
	client *futures.Client
	logger ports.Logger

	liveInterval   string
	reconnectDelay time.Duration
	reconnectMax   time.Duration

	// root context released by Stop; every stream goroutine hangs off it
	rootCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	barsCh   chan ports.RawBar
	ticksCh  chan ports.RawTick
	barsSym  string
	ticksSym string
}

// Config holds configuration specific to the Binance gateway adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger

	// LiveInterval is the kline interval used for the aggregated-bar
	// subscription (default "1m"; Binance serves nothing finer).
	LiveInterval string

	ReconnectDelay time.Duration // initial websocket reconnect delay
	ReconnectMax   time.Duration // backoff ceiling
}

// New creates a new Binance gateway adapter.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance gateway")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Gateway will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance gateway configured", map[string]interface{}{"baseURL": client.BaseURL})

	liveInterval := cfg.LiveInterval
	if liveInterval == "" {
		liveInterval = "1m"
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	reconnectMax := cfg.ReconnectMax
	if reconnectMax <= 0 {
		reconnectMax = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		client:         client,
		logger:         cfg.Logger,
		liveInterval:   liveInterval,
		reconnectDelay: reconnectDelay,
		reconnectMax:   reconnectMax,
		rootCtx:        ctx,
		cancel:         cancel,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (g *Gateway) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature / API key problems
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115,
			-1116, -1117, -1120, -1121, -1125, -1127, -1130:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		g.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	g.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// ResolveContract matches a descriptor against the exchange's listed symbols.
// A descriptor with a currency resolves to the exact pair symbol; one without
// matches every trading pair with that base asset, which can legitimately
// return several contracts for the caller to reject as ambiguous.
func (g *Gateway) ResolveContract(ctx context.Context, desc *domain.ContractDescriptor, maxMatches int) ([]*domain.Contract, error) {
	op := "ResolveContract"
	if desc == nil {
		return nil, fmt.Errorf("%s: %w: nil descriptor", op, ports.ErrInvalidRequest)
	}
	if g.isStopped() {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrGatewayStopped)
	}

	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, g.handleError(ctx, err, op)
	}

	base := strings.ToUpper(desc.Symbol)
	quote := strings.ToUpper(desc.Currency)
	exact := base + quote

	var matches []*domain.Contract
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Status != "TRADING" {
			continue
		}
		hit := false
		if quote != "" {
			hit = s.Symbol == exact
		} else {
			hit = s.BaseAsset == base
		}
		if !hit {
			continue
		}
		matches = append(matches, contractFor(desc, s))
		if maxMatches > 0 && len(matches) > maxMatches {
			break // enough to prove ambiguity
		}
	}

	g.logger.Debug(ctx, op+" finished", map[string]interface{}{
		"symbol": desc.Symbol, "currency": desc.Currency, "matches": len(matches),
	})
	return matches, nil
}

func contractFor(desc *domain.ContractDescriptor, s *futures.Symbol) *domain.Contract {
	h := fnv.New64a()
	h.Write([]byte(s.Symbol))
	return &domain.Contract{
		ContractID:   int64(h.Sum64() & (1<<63 - 1)),
		Symbol:       s.BaseAsset,
		SecurityType: desc.SecurityType,
		Exchange:     desc.Exchange,
		Currency:     s.QuoteAsset,
		Expiry:       desc.Expiry,
		Strike:       desc.Strike,
		Right:        desc.Right,
		Multiplier:   desc.Multiplier,
		LocalSymbol:  s.Symbol,
		TradingHours: "24x7",
		TimeZoneID:   "UTC",
	}
}

// RequestHistorical starts a paginated kline download feeding the returned
// channel; the channel is closed once the requested range is exhausted.
func (g *Gateway) RequestHistorical(ctx context.Context, contract *domain.Contract, req ports.HistoricalRequest) (<-chan ports.RawBar, error) {
	op := "RequestHistorical"
	if g.isStopped() {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrGatewayStopped)
	}
	interval, err := intervalString(req.Timeframe, req.Compression)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	end := time.Now()
	if req.End != nil {
		end = *req.End
	}

	out := make(chan ports.RawBar, histPageLimit)
	go func() {
		defer close(out)

		svc := func(from *time.Time) ([]*futures.Kline, error) {
			s := g.client.NewKlinesService().
				Symbol(contract.LocalSymbol).
				Interval(interval).
				EndTime(end.UnixMilli()).
				Limit(histPageLimit)
			if from != nil {
				s = s.StartTime(from.UnixMilli())
			}
			return s.Do(ctx)
		}

		from := req.Begin
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.rootCtx.Done():
				return
			default:
			}

			klines, err := svc(from)
			if err != nil {
				g.handleError(ctx, err, op)
				return
			}
			if len(klines) == 0 {
				return
			}
			for _, k := range klines {
				raw, err := translateKline(k)
				if err != nil {
					g.handleError(ctx, err, op)
					return
				}
				select {
				case out <- raw:
				case <-ctx.Done():
					return
				case <-g.rootCtx.Done():
					return
				}
			}
			last := klines[len(klines)-1]
			next := time.UnixMilli(last.CloseTime)
			if next.After(end) || len(klines) < histPageLimit {
				return
			}
			// An open-ended begin means a single maximum-size request.
			if from == nil {
				return
			}
			from = &next
		}
	}()
	return out, nil
}

// RequestLiveAggregatedBars subscribes to the kline stream and returns the
// bar channel. Calling it again for the same contract is a no-op returning
// the already established channel.
func (g *Gateway) RequestLiveAggregatedBars(ctx context.Context, contract *domain.Contract, whatToShow string) (<-chan ports.RawBar, error) {
	op := "RequestLiveAggregatedBars"
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrGatewayStopped)
	}
	if g.barsCh != nil && g.barsSym == contract.LocalSymbol {
		return g.barsCh, nil
	}
	if g.barsCh != nil {
		return nil, fmt.Errorf("%s: %w: already subscribed to %s", op, ports.ErrSubscriptionFailed, g.barsSym)
	}

	ch := make(chan ports.RawBar, 256)
	g.barsCh = ch
	g.barsSym = contract.LocalSymbol

	symbol := contract.LocalSymbol
	go g.runStream(op, symbol, func() { close(ch) }, func() (chan struct{}, chan struct{}, error) {
		handler := func(event *futures.WsKlineEvent) {
			if event == nil || !event.Kline.IsFinal {
				return
			}
			raw, err := translateWsKline(&event.Kline)
			if err != nil {
				g.logger.Error(g.rootCtx, err, op+": dropping unparseable kline event")
				return
			}
			pushMsg(g, op, ch, raw)
		}
		errHandler := func(err error) {
			g.logger.Warn(g.rootCtx, op+": websocket error reported", map[string]interface{}{"error": err.Error()})
		}
		return futures.WsKlineServe(symbol, g.liveInterval, handler, errHandler)
	})
	return ch, nil
}

// RequestLiveTicks subscribes to the aggregated-trade stream and returns the
// tick channel. Idempotent like RequestLiveAggregatedBars.
func (g *Gateway) RequestLiveTicks(ctx context.Context, contract *domain.Contract, whatToShow string) (<-chan ports.RawTick, error) {
	op := "RequestLiveTicks"
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrGatewayStopped)
	}
	if g.ticksCh != nil && g.ticksSym == contract.LocalSymbol {
		return g.ticksCh, nil
	}
	if g.ticksCh != nil {
		return nil, fmt.Errorf("%s: %w: already subscribed to %s", op, ports.ErrSubscriptionFailed, g.ticksSym)
	}

	ch := make(chan ports.RawTick, 1024)
	g.ticksCh = ch
	g.ticksSym = contract.LocalSymbol

	symbol := contract.LocalSymbol
	go g.runStream(op, symbol, func() { close(ch) }, func() (chan struct{}, chan struct{}, error) {
		handler := func(event *futures.WsAggTradeEvent) {
			tick, err := translateAggTrade(event)
			if err != nil {
				g.logger.Error(g.rootCtx, err, op+": dropping unparseable trade event")
				return
			}
			pushMsg(g, op, ch, tick)
		}
		errHandler := func(err error) {
			g.logger.Warn(g.rootCtx, op+": websocket error reported", map[string]interface{}{"error": err.Error()})
		}
		return futures.WsAggTradeServe(symbol, handler, errHandler)
	})
	return ch, nil
}

// runStream keeps one websocket subscription alive until Stop, reconnecting
// with exponential backoff, and runs closeOut once the stream is released.
func (g *Gateway) runStream(op, symbol string, closeOut func(), serve func() (chan struct{}, chan struct{}, error)) {
	defer closeOut()

	b := &backoff.Backoff{Min: g.reconnectDelay, Max: g.reconnectMax, Jitter: true}
	for {
		select {
		case <-g.rootCtx.Done():
			return
		default:
		}

		doneC, stopC, err := serve()
		if err != nil {
			delay := b.Duration()
			g.logger.Warn(g.rootCtx, op+": connection failed, retrying", map[string]interface{}{
				"symbol": symbol, "delay": delay.String(), "error": err.Error(),
			})
			select {
			case <-time.After(delay):
				continue
			case <-g.rootCtx.Done():
				return
			}
		}

		b.Reset()
		g.logger.Info(g.rootCtx, op+": websocket connection established", map[string]interface{}{"symbol": symbol})

		select {
		case <-doneC:
			g.logger.Warn(g.rootCtx, op+": websocket connection closed, reconnecting", map[string]interface{}{"symbol": symbol})
		case <-g.rootCtx.Done():
			select {
			case stopC <- struct{}{}:
			default:
			}
			return
		}
	}
}

// push forwards one message without ever blocking the websocket handler; a
// full channel drops the message and logs it.
func pushMsg[T any](g *Gateway, op string, ch chan T, msg T) {
	select {
	case ch <- msg:
	default:
		g.logger.Warn(g.rootCtx, op+": consumer queue full, dropping message")
	}
}

// Stop releases every stream and pending download. After Stop the gateway
// rejects further requests.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return nil
	}
	g.stopped = true
	g.cancel()
	g.logger.Info(ctx, "Binance gateway stopped")
	return nil
}

func (g *Gateway) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// --- Translation Helpers ---

func translateKline(k *futures.Kline) (ports.RawBar, error) {
	if k == nil {
		return ports.RawBar{}, errors.New("received nil historical kline")
	}
	open, err := parseFloat("open", k.Open)
	if err != nil {
		return ports.RawBar{}, err
	}
	high, err := parseFloat("high", k.High)
	if err != nil {
		return ports.RawBar{}, err
	}
	low, err := parseFloat("low", k.Low)
	if err != nil {
		return ports.RawBar{}, err
	}
	cls, err := parseFloat("close", k.Close)
	if err != nil {
		return ports.RawBar{}, err
	}
	vol, err := parseFloat("volume", k.Volume)
	if err != nil {
		return ports.RawBar{}, err
	}
	return ports.RawBar{
		Time:   time.UnixMilli(k.OpenTime),
		Open:   &open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: vol,
	}, nil
}

func translateWsKline(k *futures.WsKline) (ports.RawBar, error) {
	open, err := parseFloat("open", k.Open)
	if err != nil {
		return ports.RawBar{}, err
	}
	high, err := parseFloat("high", k.High)
	if err != nil {
		return ports.RawBar{}, err
	}
	low, err := parseFloat("low", k.Low)
	if err != nil {
		return ports.RawBar{}, err
	}
	cls, err := parseFloat("close", k.Close)
	if err != nil {
		return ports.RawBar{}, err
	}
	vol, err := parseFloat("volume", k.Volume)
	if err != nil {
		return ports.RawBar{}, err
	}
	return ports.RawBar{
		Time:   time.UnixMilli(k.StartTime),
		Open:   &open,
		High:   high,
		Low:    low,
		Close:  cls,
		Volume: vol,
	}, nil
}

func translateAggTrade(e *futures.WsAggTradeEvent) (ports.RawTick, error) {
	if e == nil {
		return ports.RawTick{}, errors.New("received nil trade event")
	}
	price, err := parseFloat("price", e.Price)
	if err != nil {
		return ports.RawTick{}, err
	}
	size, err := parseFloat("quantity", e.Quantity)
	if err != nil {
		return ports.RawTick{}, err
	}
	return ports.RawTick{
		Time:  time.UnixMilli(e.TradeTime),
		Price: price,
		Size:  size,
	}, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", name, s, err)
	}
	return v, nil
}

// intervalString maps a timeframe/compression pair to a Binance kline
// interval. Granularities the kline API does not serve are rejected.
func intervalString(tf domain.Timeframe, compression int) (string, error) {
	switch tf {
	case domain.TimeframeMinutes:
		switch {
		case compression%(60*24) == 0:
			return fmt.Sprintf("%dd", compression/(60*24)), nil
		case compression%60 == 0:
			return fmt.Sprintf("%dh", compression/60), nil
		default:
			return fmt.Sprintf("%dm", compression), nil
		}
	case domain.TimeframeDays:
		return fmt.Sprintf("%dd", compression), nil
	case domain.TimeframeWeeks:
		return fmt.Sprintf("%dw", compression), nil
	case domain.TimeframeMonths:
		return fmt.Sprintf("%dM", compression), nil
	default:
		return "", fmt.Errorf("%w: no kline interval for %s/%d", ports.ErrInvalidRequest, tf, compression)
	}
}
