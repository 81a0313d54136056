package cache

import (
	"context"
	"time"
)

const (
	AccountKeyPrefix   = "account:"
	RevokedTokenPrefix = "revoked:"
	WSTicketPrefix     = "ws_ticket:"
	SuggestionsPrefix  = "suggestions:"
)

const (
	AccountTTL     = 5 * time.Minute
	WSTicketTTL    = 30 * time.Second
	// SuggestionsTTL bounds how long a dismissal can refer to a shown list.
	SuggestionsTTL = 10 * time.Minute
)

func AccountKey(accountID string) string {
	return AccountKeyPrefix + accountID
}

func RevokedTokenKey(jti string) string {
	return RevokedTokenPrefix + jti
}

func WSTicketKey(ticket string) string {
	return WSTicketPrefix + ticket
}

func SuggestionsKey(viewerID string) string {
	return SuggestionsPrefix + viewerID
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateAccounts drops cached accounts whose counters or profile changed.
func InvalidateAccounts(ctx context.Context, accountIDs ...string) {
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, AccountKey(id))
	}
	Invalidate(ctx, keys...)
}
