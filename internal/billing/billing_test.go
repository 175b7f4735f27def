package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/extract"
)

type fakeQuerier struct {
	subscription string
	usage        string
	err          error
	paths        []string
}

func (f *fakeQuerier) GetJSON(_ context.Context, _ config.Credential, path string) (extract.Node, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return extract.Node{}, f.err
	}
	if strings.HasPrefix(path, usagePath) {
		return extract.Parse([]byte(f.usage))
	}
	return extract.Parse([]byte(f.subscription))
}

func newTracker(q Querier, key string) *Tracker {
	tr := NewTracker(q, config.NewCell("http://backend", key), slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }
	return tr
}

func TestRefresh(t *testing.T) {
	q := &fakeQuerier{
		subscription: `{"object": "billing_subscription", "hard_limit_usd": 25.5}`,
		usage:        `{"object": "list", "total_usage": 1234.5}`,
	}
	tr := newTracker(q, "sk-test")

	b := tr.Refresh(context.Background())
	require.NotNil(t, b.Remaining)
	assert.Equal(t, "13.16", *b.Remaining)
	assert.Empty(t, b.Error)
	assert.Equal(t, "2026-03-09T10:00:00Z", *b.UpdatedAt)
	assert.Equal(t, b, tr.Current())

	assert.Equal(t, []string{
		"/v1/dashboard/billing/subscription",
		"/v1/dashboard/billing/usage?start_date=2023-01-01&end_date=2026-03-09",
	}, q.paths)
}

func TestRefreshKeepsLastAmountOnError(t *testing.T) {
	q := &fakeQuerier{
		subscription: `{"hard_limit_usd": 10}`,
		usage:        `{"total_usage": 0}`,
	}
	tr := newTracker(q, "sk-test")
	tr.Refresh(context.Background())

	q.err = errors.New("connection refused")
	b := tr.Refresh(context.Background())
	require.NotNil(t, b.Remaining)
	assert.Equal(t, "10.00", *b.Remaining)
	assert.Contains(t, b.Error, "connection refused")
}

func TestRefreshWithoutCredential(t *testing.T) {
	q := &fakeQuerier{}
	tr := newTracker(q, "")

	b := tr.Refresh(context.Background())
	assert.Nil(t, b.Remaining)
	assert.Equal(t, ErrNoCredential.Error(), b.Error)
	assert.Empty(t, q.paths)
}

func TestRefreshWithoutLimitReportsZero(t *testing.T) {
	q := &fakeQuerier{
		subscription: `{"object": "billing_subscription"}`,
		usage:        `{"total_usage": 250}`,
	}
	tr := newTracker(q, "sk-test")

	b := tr.Refresh(context.Background())
	require.NotNil(t, b.Remaining)
	assert.Equal(t, "0.00", *b.Remaining)
	assert.Empty(t, b.Error)
}

func TestRefreshRejectsMalformedLimit(t *testing.T) {
	tr := newTracker(&fakeQuerier{subscription: `{"hard_limit_usd": "plenty"}`, usage: `{}`}, "sk-test")

	b := tr.Refresh(context.Background())
	assert.Nil(t, b.Remaining)
	assert.Contains(t, b.Error, ErrBadLimit.Error())
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		limit, usage, want string
	}{
		{"100", "2500", "75"},
		{"5", "900", "0"},
		{"0.3", "10", "0.2"},
	}
	for _, tt := range tests {
		got := Remaining(decimal.RequireFromString(tt.limit), decimal.RequireFromString(tt.usage))
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "limit %s usage %s: got %s", tt.limit, tt.usage, got)
	}
}
