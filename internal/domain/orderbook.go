package domain

// BookSide is which side of the book an entry belongs to.
type BookSide string

const (
	Bid BookSide = "BID"
	Ask BookSide = "ASK"
)

// UpdateType classifies an OrderBookEntry mutation.
type UpdateType string

const (
	EntryNew    UpdateType = "NEW"
	EntryUpdate UpdateType = "UPDATE"
	EntryDelete UpdateType = "DELETE"
)

// OrderBookEntry is one normalized book mutation, after active-quote
// reconciliation has assigned Key/RefKey and possibly rewritten UpdateType.
type OrderBookEntry struct {
	Key         int64
	RefKey      int64
	ID          string
	RefID       string
	Instrument  string
	Side        BookSide
	Price       float64
	Volume      float64
	UpdateType  UpdateType
	PositionNo  int
	SequenceTag int64
	EndOfMessage bool
}

// QuoteInfo is what the ActiveQuoteTable remembers about a resting quote,
// keyed by its deterministic id.
type QuoteInfo struct {
	Key        int64
	Instrument string
	Side       BookSide
}
