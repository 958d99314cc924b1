package ports

import (
	"context"
	"time"

	"ibfeed/internal/domain"
)

// RawBar is a broker-aggregated OHLCV sample as it arrives from the gateway,
// either from a historical download or from a real-time aggregated stream.
// The open price may arrive under either of two wire names depending on the
// historical form; at most one of Open/OpenAlias is set.
type RawBar struct {
	Time      time.Time
	Open      *float64
	OpenAlias *float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// RawTick is a single trade or quote event from the real-time tick stream.
type RawTick struct {
	Time  time.Time
	Price float64
	Size  float64
}

// HistoricalRequest describes one historical-data download. A nil Begin or
// End leaves that side of the range open.
type HistoricalRequest struct {
	Begin       *time.Time
	End         *time.Time
	Timeframe   domain.Timeframe
	Compression int
	WhatToShow  string
	UseRTH      bool
	TimeZoneID  string
	SessionEnd  string
}

// BrokerGateway is the broker-side collaborator of the feed. It owns the
// connection, all request chunking/pagination and all reconnection policy.
// The returned channels are produced by gateway-owned background work and
// must be safe for non-blocking reads by a single consumer; a closed
// historical channel signals exhaustion. Repeating an identical live
// subscription request is a safe no-op returning the same channel.
type BrokerGateway interface {
	// ResolveContract resolves a descriptor to concrete contracts, returning
	// at most maxMatches of them. An empty result or more matches than the
	// caller accepts is treated by the caller as a resolution failure.
	ResolveContract(ctx context.Context, desc *domain.ContractDescriptor, maxMatches int) ([]*domain.Contract, error)

	// RequestHistorical starts a historical download and returns the channel
	// the bars will arrive on. The channel is closed once the range is done.
	RequestHistorical(ctx context.Context, contract *domain.Contract, req HistoricalRequest) (<-chan RawBar, error)

	// RequestLiveAggregatedBars subscribes to broker-aggregated real-time bars.
	RequestLiveAggregatedBars(ctx context.Context, contract *domain.Contract, whatToShow string) (<-chan RawBar, error)

	// RequestLiveTicks subscribes to the raw trade/quote tick stream.
	RequestLiveTicks(ctx context.Context, contract *domain.Contract, whatToShow string) (<-chan RawTick, error)

	// Stop releases every subscription and pending request held for this feed.
	// No bar may be delivered on any previously returned channel after Stop.
	Stop(ctx context.Context) error
}
