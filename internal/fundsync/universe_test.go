package fundsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fund-cli/internal/model"
)

type fakeUniverse struct {
	funds   []model.Fund
	err     error
	etfOnly bool
}

func (u *fakeUniverse) Universe(_ context.Context, etfOnly bool) ([]model.Fund, error) {
	u.etfOnly = etfOnly
	return u.funds, u.err
}

func TestSyncUniverse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	src := &fakeUniverse{funds: []model.Fund{
		{ClassID: "C000000011", CIK: "0000000002", SeriesID: "S000000002", Ticker: "SPY"},
		{ClassID: "C000000010", CIK: "0000000001", SeriesID: "S000000001", Ticker: "QQQ"},
	}}

	res, err := SyncUniverse(ctx, src, db, true)
	require.NoError(t, err)
	assert.True(t, src.etfOnly)
	assert.Equal(t, int64(2), res.Upserted)

	ciks, err := db.ListEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000001", "0000000002"}, ciks)
}

func TestSyncUniverse_FetchError(t *testing.T) {
	db := newTestDB(t)
	_, err := SyncUniverse(context.Background(), &fakeUniverse{err: errors.New("403")}, db, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch universe")
}

func TestSyncUniverse_EmptyListingKeepsRegistry(t *testing.T) {
	db := newTestDB(t)
	db.seed(t, "0000000001")

	_, err := SyncUniverse(context.Background(), &fakeUniverse{}, db, false)
	require.Error(t, err)

	ciks, err := db.ListEntities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000001"}, ciks)
}
