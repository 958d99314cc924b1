package domain

// SecurityType identifies the kind of tradable instrument a contract refers to.
type SecurityType string

const (
	SecTypeStock  SecurityType = "STK"
	SecTypeCFD    SecurityType = "CFD"
	SecTypeIndex  SecurityType = "IND"
	SecTypeFuture SecurityType = "FUT"
	SecTypeFOP    SecurityType = "FOP" // option on a future
	SecTypeOption SecurityType = "OPT"
	SecTypeCash   SecurityType = "CASH" // forex pair
)

// ContractDescriptor describes an instrument before broker resolution.
// For CASH instruments Symbol holds the base currency and Currency the quote
// currency. Immutable once built by the parser; consumed once by resolution.
type ContractDescriptor struct {
	Symbol       string
	SecurityType SecurityType
	Exchange     string
	Currency     string
	Expiry       string // YYYYMM for futures, YYYYMMDD for options, else empty
	Strike       float64
	Right        string // "", "C" or "P"
	Multiplier   string
}

// Contract is a broker-confirmed contract plus the details the feed needs.
// It is replaced, never mutated, when a reconnection resolves a new one.
type Contract struct {
	ContractID   int64
	Symbol       string
	SecurityType SecurityType
	Exchange     string
	Currency     string
	Expiry       string
	Strike       float64
	Right        string
	Multiplier   string
	LocalSymbol  string
	TradingHours string
	TimeZoneID   string
}

// Same reports whether both contracts refer to the same broker instrument.
func (c *Contract) Same(other *Contract) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.ContractID == other.ContractID
}

// TimeZone returns the contract's timezone identifier. Some broker frontends
// report the bare "CST" abbreviation, which timezone databases do not accept;
// it is patched to the POSIX "CST6CDT" form.
func (c *Contract) TimeZone() string {
	if c.TimeZoneID == "CST" {
		return "CST6CDT"
	}
	return c.TimeZoneID
}
