package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Identifier Grammar Errors
	ErrMissingSymbol    = errors.New("instrument identifier has no symbol token")
	ErrCashPairNoQuote  = errors.New("cash symbol is missing the quote currency part")
	ErrBadStrike        = errors.New("strike token is not a valid number")

	// Broker Gateway Errors
	ErrExchangeUnavailable  = errors.New("broker API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrContractNotFound     = errors.New("no contract matched the descriptor")
	ErrAmbiguousContract    = errors.New("descriptor matched more than one contract")
	ErrSubscriptionFailed   = errors.New("failed to establish a market data subscription")
	ErrGatewayStopped       = errors.New("broker gateway has been stopped")

	// Storage Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
