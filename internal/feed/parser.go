package feed

import (
	"fmt"
	"strconv"
	"strings"

	"ibfeed/internal/domain"
	"ibfeed/internal/ports"
)

// Defaults are the fallback values applied to tokens absent from an
// instrument identifier.
type Defaults struct {
	SecurityType domain.SecurityType
	Exchange     string
	Currency     string
}

// ParseContract decodes a dash-delimited instrument identifier into a
// contract descriptor. The grammar, by example:
//
//	TICKER                                   stock, default exchange
//	TICKER-STK-EXCHANGE-CURRENCY             stock
//	TICKER-CFD-EXCHANGE-CURRENCY             CFD
//	TICKER-IND-EXCHANGE-CURRENCY             index
//	TICKER-YYYYMM-EXCHANGE-CURRENCY-MULT     future
//	TICKER-FUT-EXCHANGE-CURRENCY-YYYYMM-MULT future
//	TICKER-YYYYMM-EXCHANGE-CURRENCY-STRIKE-MULT          future option
//	TICKER-YYYYMMDD-EXCHANGE-CURRENCY-STRIKE-RIGHT-MULT  option
//	CUR1.CUR2-CASH-IDEALPRO                  forex
//
// Tokens are consumed left to right and every token after the security type
// is optional: the first absent token ends field population, leaving the
// remaining fields at their defaults. An empty identifier denotes "no
// instrument" (used for the optional trade instrument) and yields a nil
// descriptor with no error.
func ParseContract(identifier string, defs Defaults) (*domain.ContractDescriptor, error) {
	if identifier == "" {
		return nil, nil
	}

	tk := &tokenStream{toks: strings.Split(identifier, "-")}

	symbol, _ := tk.next()
	if symbol == "" {
		return nil, fmt.Errorf("%w: %q", ports.ErrMissingSymbol, identifier)
	}

	sectype, ok := tk.next()
	if !ok {
		sectype = string(defs.SecurityType)
	}

	d := &domain.ContractDescriptor{
		Symbol:       symbol,
		SecurityType: domain.SecurityType(sectype),
		Exchange:     defs.Exchange,
		Currency:     defs.Currency,
	}

	// The security type slot may instead carry an expiration date: YYYYMM
	// means a future, any other digit run is taken as an option's YYYYMMDD.
	if isDigits(sectype) {
		d.Expiry = sectype
		if len(sectype) == 6 {
			d.SecurityType = domain.SecTypeFuture
		} else {
			d.SecurityType = domain.SecTypeOption
		}
	}

	if d.SecurityType == domain.SecTypeCash {
		base, quote, found := strings.Cut(d.Symbol, ".")
		if !found {
			return nil, fmt.Errorf("%w: %q", ports.ErrCashPairNoQuote, d.Symbol)
		}
		d.Symbol, d.Currency = base, quote
	}

	if err := parseOptional(tk, d); err != nil {
		return nil, err
	}
	return d, nil
}

// parseOptional consumes the positional tokens after the security type.
// Exhaustion of the stream at any step is not an error; it just stops
// further field population.
func parseOptional(tk *tokenStream, d *domain.ContractDescriptor) error {
	tok, ok := tk.next()
	if !ok {
		return nil
	}
	d.Exchange = tok

	if tok, ok = tk.next(); !ok {
		return nil
	}
	d.Currency = tok

	switch d.SecurityType {
	case domain.SecTypeFuture:
		if d.Expiry == "" {
			if tok, ok = tk.next(); !ok {
				return nil
			}
			d.Expiry = tok
		}
		if tok, ok = tk.next(); !ok {
			return nil
		}
		d.Multiplier = tok

		// One more token means this is a future option: the token just read
		// as multiplier is really the strike, and the probe token is the
		// actual multiplier. Unusual, but it is what the grammar says.
		if probe, more := tk.next(); more {
			strike, err := strconv.ParseFloat(d.Multiplier, 64)
			if err != nil {
				return fmt.Errorf("%w: %q", ports.ErrBadStrike, d.Multiplier)
			}
			d.SecurityType = domain.SecTypeFOP
			d.Strike = strike
			d.Multiplier = probe
		}

	case domain.SecTypeOption:
		if d.Expiry == "" {
			if tok, ok = tk.next(); !ok {
				return nil
			}
			d.Expiry = tok
		}
		if tok, ok = tk.next(); !ok {
			return nil
		}
		strike, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ports.ErrBadStrike, tok)
		}
		d.Strike = strike

		if tok, ok = tk.next(); !ok {
			return nil
		}
		d.Right = tok

		if tok, ok = tk.next(); !ok {
			return nil
		}
		d.Multiplier = tok
	}

	return nil
}

// tokenStream walks the split identifier once, left to right.
type tokenStream struct {
	toks []string
	pos  int
}

func (t *tokenStream) next() (string, bool) {
	if t.pos >= len(t.toks) {
		return "", false
	}
	tok := t.toks[t.pos]
	t.pos++
	return tok, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
