package event

import "context"

// Store persists and retrieves the engine's event log.
type Store interface {
	// Append persists one or more events in arrival order.
	Append(ctx context.Context, events ...Event) error
	// ForAuction returns all events logged for an auction, oldest first.
	ForAuction(ctx context.Context, auctionExtID string) ([]Event, error)
	// ForKind returns events filtered by Kind, oldest first.
	ForKind(ctx context.Context, kind Kind) ([]Event, error)
	// Purge deletes persisted data according to mode: "logs" clears
	// only the event log, "states" clears item state/commercial/config
	// rows, "all" clears everything including auctions and items.
	Purge(ctx context.Context, mode string) error
}
