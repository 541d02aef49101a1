package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/config"
)

type fakeStock struct {
	levels    map[string]decimal.Decimal
	err       error
	warehouse string
	asked     []string
}

func (f *fakeStock) Available(_ context.Context, warehouse string, codes []string) (map[string]decimal.Decimal, error) {
	f.warehouse = warehouse
	f.asked = codes
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal)
	for _, code := range codes {
		if v, ok := f.levels[code]; ok {
			out[code] = v
		}
	}
	return out, nil
}

func newAdapter(src Source) *Adapter {
	return New(Params{Source: src, Config: config.Config{
		Inventory: config.Inventory{Warehouse: "MAIN"},
		Upstream: config.Upstream{
			Timeout:            time.Second,
			RetryInitial:       time.Millisecond,
			RetryMax:           time.Millisecond,
			BreakerFailures:    5,
			BreakerOpenTimeout: time.Minute,
		},
	}})
}

func TestLookupFillsMissingProducts(t *testing.T) {
	src := &fakeStock{levels: map[string]decimal.Decimal{"P-1": decimal.NewFromInt(7)}}
	a := newAdapter(src)

	got, err := a.Lookup(context.Background(), []string{"P-2", "P-1", "P-1", ""})
	require.NoError(t, err)

	assert.Equal(t, "MAIN", src.warehouse)
	assert.Equal(t, []string{"P-1", "P-2"}, src.asked)
	assert.True(t, got["P-1"].Equal(decimal.NewFromInt(7)))
	v, ok := got["P-2"]
	assert.True(t, ok)
	assert.True(t, v.IsZero())
}

func TestLookupEmptySkipsSource(t *testing.T) {
	src := &fakeStock{}
	got, err := newAdapter(src).Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, src.asked)
}

func TestLookupUnavailable(t *testing.T) {
	src := &fakeStock{err: errors.New("timeout")}
	_, err := newAdapter(src).Lookup(context.Background(), []string{"P-1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
