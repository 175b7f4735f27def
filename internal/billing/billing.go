// Package billing reports the remaining credit of the configured API key.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/extract"
	"github.com/georgeshao/genstudio/pkg/types"
)

const (
	subscriptionPath = "/v1/dashboard/billing/subscription"
	usagePath        = "/v1/dashboard/billing/usage"
	usageStartDate   = "2023-01-01"
)

var (
	ErrNoCredential = errors.New("API key is not configured")
	ErrBadLimit     = errors.New("subscription hard limit is not a number")
)

type Querier interface {
	GetJSON(ctx context.Context, cred config.Credential, path string) (extract.Node, error)
}

type Credentials interface {
	Current() config.Credential
}

// Tracker caches the last computed balance. Refresh is safe to call
// concurrently; the last one to finish wins.
type Tracker struct {
	querier Querier
	creds   Credentials
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.RWMutex
	current types.Balance
}

func NewTracker(querier Querier, creds Credentials, logger *slog.Logger) *Tracker {
	return &Tracker{
		querier: querier,
		creds:   creds,
		now:     time.Now,
		logger:  logger,
	}
}

func (t *Tracker) Current() types.Balance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Refresh refetches the balance. On failure the previous amount is kept and
// the error is reported alongside it.
func (t *Tracker) Refresh(ctx context.Context) types.Balance {
	remaining, err := t.fetch(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.logger.Warn("balance refresh failed", "error", err)
		t.current.Error = err.Error()
		return t.current
	}

	amount := remaining.StringFixed(2)
	updated := t.now().UTC().Format(time.RFC3339)
	t.current = types.Balance{Remaining: &amount, UpdatedAt: &updated}
	return t.current
}

func (t *Tracker) fetch(ctx context.Context) (decimal.Decimal, error) {
	cred := t.creds.Current()
	if !cred.Valid() {
		return decimal.Zero, ErrNoCredential
	}

	sub, err := t.querier.GetJSON(ctx, cred, subscriptionPath)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	// A subscription without a hard limit has nothing left to spend.
	limit := decimal.Zero
	if sub.Lookup("hard_limit_usd").Truthy() {
		if limit, err = decimalAt(sub, "hard_limit_usd"); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrBadLimit, err)
		}
	}

	path := fmt.Sprintf("%s?start_date=%s&end_date=%s", usagePath, usageStartDate, t.now().Format(time.DateOnly))
	usage, err := t.querier.GetJSON(ctx, cred, path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch usage: %w", err)
	}
	spent, err := decimalAt(usage, "total_usage")
	if err != nil {
		spent = decimal.Zero
	}

	return Remaining(limit, spent), nil
}

// Remaining converts usage, reported in cents, against a dollar limit and
// floors the result at zero.
func Remaining(hardLimitUSD, totalUsageCents decimal.Decimal) decimal.Decimal {
	left := hardLimitUSD.Sub(totalUsageCents.Div(decimal.NewFromInt(100)))
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

func decimalAt(n extract.Node, key string) (decimal.Decimal, error) {
	v := n.Lookup(key)
	if v.Kind() != extract.Number && v.Kind() != extract.String {
		return decimal.Zero, fmt.Errorf("%s missing", key)
	}
	return decimal.NewFromString(v.Text())
}
