package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ibfeed/internal/domain"
	"ibfeed/internal/feed"
	"ibfeed/internal/ports"
)

// FeedService owns one feed and drives its production loop: Produce is
// called repeatedly, sleeping the configured poll interval whenever the feed
// has nothing ready, until the stream ends or the context is canceled.
type FeedService struct {
	feed   *feed.Feed
	logger ports.Logger
	poll   time.Duration

	delivered int64
}

// NewFeedService creates the service. poll is the wait between production
// attempts when no data is ready.
func NewFeedService(f *feed.Feed, logger ports.Logger, poll time.Duration) (*FeedService, error) {
	if f == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for FeedService")
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &FeedService{feed: f, logger: logger, poll: poll}, nil
}

// Delivered returns the number of bars delivered so far.
func (s *FeedService) Delivered() int64 { return s.delivered }

// Run starts the feed and drives it until end of stream, context
// cancellation or an interrupt signal.
func (s *FeedService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting feed service")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.feed.Start(ctx); err != nil {
		return fmt.Errorf("feed start failed: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := s.feed.Stop(stopCtx); err != nil {
			s.logger.Error(stopCtx, err, "feed stop failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Feed service shutting down", map[string]interface{}{"delivered": s.delivered})
			return nil
		default:
		}

		switch s.feed.Produce(ctx) {
		case feed.OutcomeDelivered:
			s.delivered++
		case feed.OutcomeNoData:
			select {
			case <-time.After(s.poll):
			case <-ctx.Done():
			}
		case feed.OutcomeEndOfStream:
			s.logger.Info(ctx, "Feed reached end of stream", map[string]interface{}{"delivered": s.delivered})
			return nil
		}
	}
}

// LogStatus returns a notification callback that logs lifecycle changes;
// handy default for Config.OnStatus.
func LogStatus(logger ports.Logger) func(domain.FeedStatus) {
	return func(status domain.FeedStatus) {
		logger.Info(context.Background(), "Feed lifecycle notification", map[string]interface{}{"status": status.String()})
	}
}
