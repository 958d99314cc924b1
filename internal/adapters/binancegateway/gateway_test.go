package binancegateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ibfeed/internal/domain"
	"ibfeed/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New(Config{APIKey: "k", SecretKey: "s", UseTestnet: true, Logger: nopLogger{}})
	require.NoError(t, err)
	return g
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(Config{APIKey: "k", SecretKey: "s"})
	assert.Error(t, err)
}

func TestIntervalString(t *testing.T) {
	tests := []struct {
		tf          domain.Timeframe
		compression int
		want        string
	}{
		{domain.TimeframeMinutes, 1, "1m"},
		{domain.TimeframeMinutes, 15, "15m"},
		{domain.TimeframeMinutes, 60, "1h"},
		{domain.TimeframeMinutes, 240, "4h"},
		{domain.TimeframeMinutes, 60 * 24, "1d"},
		{domain.TimeframeDays, 1, "1d"},
		{domain.TimeframeWeeks, 1, "1w"},
		{domain.TimeframeMonths, 1, "1M"},
	}
	for _, tt := range tests {
		got, err := intervalString(tt.tf, tt.compression)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestIntervalStringRejectsFineGranularities(t *testing.T) {
	for _, tf := range []domain.Timeframe{domain.TimeframeTicks, domain.TimeframeSeconds} {
		_, err := intervalString(tf, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	}
}

func TestHandleErrorMapsAPICodes(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	tests := []struct {
		code int64
		want error
	}{
		{-1003, ports.ErrRateLimited},
		{-1021, ports.ErrTimeout},
		{-1022, ports.ErrAuthenticationFailed},
		{-2014, ports.ErrAuthenticationFailed},
		{-2015, ports.ErrAuthenticationFailed},
		{-1102, ports.ErrInvalidRequest},
		{-9999, ports.ErrUnknown},
	}
	for _, tt := range tests {
		err := g.handleError(ctx, &common.APIError{Code: tt.code, Message: "m"}, "op")
		assert.ErrorIs(t, err, tt.want, "code %d", tt.code)
	}
}

func TestHandleErrorMapsContextErrors(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	assert.ErrorIs(t, g.handleError(ctx, context.DeadlineExceeded, "op"), ports.ErrTimeout)
	assert.ErrorIs(t, g.handleError(ctx, context.Canceled, "op"), ports.ErrContextCanceled)
	assert.ErrorIs(t, g.handleError(ctx, errors.New("connection refused"), "op"), ports.ErrConnectionFailed)
	assert.NoError(t, g.handleError(ctx, nil, "op"))
}

func TestContractFor(t *testing.T) {
	desc := &domain.ContractDescriptor{
		Symbol: "BTC", SecurityType: domain.SecTypeCash, Exchange: "BINANCE", Currency: "USDT",
	}
	sym := &futures.Symbol{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"}

	c := contractFor(desc, sym)
	assert.Equal(t, "BTC", c.Symbol)
	assert.Equal(t, "USDT", c.Currency)
	assert.Equal(t, "BTCUSDT", c.LocalSymbol)
	assert.Equal(t, domain.SecTypeCash, c.SecurityType)
	assert.Equal(t, "UTC", c.TimeZoneID)
	assert.Positive(t, c.ContractID)

	// the id is a pure function of the pair symbol
	again := contractFor(desc, sym)
	assert.True(t, c.Same(again))

	other := contractFor(desc, &futures.Symbol{Symbol: "BTCBUSD", BaseAsset: "BTC", QuoteAsset: "BUSD"})
	assert.False(t, c.Same(other))
}

func TestTranslateKline(t *testing.T) {
	k := &futures.Kline{
		OpenTime: 1709283600000,
		Open:     "100.5", High: "101", Low: "99.5", Close: "100.75", Volume: "12.5",
	}
	raw, err := translateKline(k)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1709283600000), raw.Time)
	require.NotNil(t, raw.Open)
	assert.Equal(t, 100.5, *raw.Open)
	assert.Equal(t, 101.0, raw.High)
	assert.Equal(t, 99.5, raw.Low)
	assert.Equal(t, 100.75, raw.Close)
	assert.Equal(t, 12.5, raw.Volume)

	_, err = translateKline(nil)
	assert.Error(t, err)

	_, err = translateKline(&futures.Kline{Open: "not-a-number"})
	assert.Error(t, err)
}

func TestTranslateAggTrade(t *testing.T) {
	e := &futures.WsAggTradeEvent{TradeTime: 1709283600123, Price: "100.5", Quantity: "0.25"}
	tick, err := translateAggTrade(e)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1709283600123), tick.Time)
	assert.Equal(t, 100.5, tick.Price)
	assert.Equal(t, 0.25, tick.Size)

	_, err = translateAggTrade(nil)
	assert.Error(t, err)
}

func TestStoppedGatewayRejectsRequests(t *testing.T) {
	g := newTestGateway(t)
	require.NoError(t, g.Stop(context.Background()))
	require.NoError(t, g.Stop(context.Background()), "stop is idempotent")

	contract := &domain.Contract{LocalSymbol: "BTCUSDT"}

	_, err := g.ResolveContract(context.Background(), &domain.ContractDescriptor{Symbol: "BTC"}, 1)
	assert.ErrorIs(t, err, ports.ErrGatewayStopped)

	_, err = g.RequestHistorical(context.Background(), contract, ports.HistoricalRequest{
		Timeframe: domain.TimeframeMinutes, Compression: 1,
	})
	assert.ErrorIs(t, err, ports.ErrGatewayStopped)

	_, err = g.RequestLiveAggregatedBars(context.Background(), contract, "TRADES")
	assert.ErrorIs(t, err, ports.ErrGatewayStopped)

	_, err = g.RequestLiveTicks(context.Background(), contract, "TRADES")
	assert.ErrorIs(t, err, ports.ErrGatewayStopped)
}
