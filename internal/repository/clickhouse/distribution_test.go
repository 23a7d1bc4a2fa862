package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/testsupport"
)

func TestGroupPoints(t *testing.T) {
	t1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	rows := []bucketRow{
		{ChainID: "ethereum", SnapshotTime: t1, Bucket: "1.0-1.1", BucketIndex: 0, Users: 2, TotalDebtUSD: 10, UsersWithDebt: 9, UsersExcluded: 1},
		{ChainID: "ethereum", SnapshotTime: t1, Bucket: "1.1-1.25", BucketIndex: 1, Users: 3},
		{ChainID: "ethereum", SnapshotTime: t0, Bucket: "1.0-1.1", BucketIndex: 0, Users: 1, UsersWithDebt: 4},
	}

	points := groupPoints(rows)
	require.Len(t, points, 2)

	assert.True(t, t1.Equal(points[0].SnapshotTime))
	assert.Equal(t, 9, points[0].UsersWithDebt)
	assert.Equal(t, 1, points[0].UsersExcluded)
	require.Len(t, points[0].Buckets, 2)
	assert.Equal(t, "1.1-1.25", points[0].Buckets[1].Bucket)
	assert.Equal(t, 3, points[0].Buckets[1].Count)
	assert.True(t, decimal.NewFromInt(10).Equal(points[0].Buckets[0].TotalDebtUSD))

	assert.Equal(t, 4, points[1].UsersWithDebt)
	assert.Len(t, points[1].Buckets, 1)
}

func TestGroupPointsEmpty(t *testing.T) {
	assert.Empty(t, groupPoints(nil))
}

func TestDistributionRepository_AppendAndHistory(t *testing.T) {
	const chain = "ch-test-chain"
	client := testsupport.NewTestClickHouse(t, chain)
	repo := NewDistributionRepository(client.Conn())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		buckets := make([]healthfactor.HealthFactorDistribution, len(healthfactor.Bands))
		for j, band := range healthfactor.Bands {
			buckets[j] = healthfactor.HealthFactorDistribution{
				Bucket:             band.Label,
				Count:              i + j,
				TotalCollateralUSD: decimal.NewFromInt(int64(100 * j)),
				TotalDebtUSD:       decimal.NewFromInt(int64(50 * j)),
			}
		}
		require.NoError(t, repo.AppendDistribution(ctx, &healthfactor.DistributionPoint{
			ChainID:       chain,
			SnapshotTime:  base.Add(time.Duration(i) * time.Hour),
			UsersWithDebt: 20 + i,
			Buckets:       buckets,
		}))
	}

	points, err := repo.GetDistributionHistory(ctx, chain, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, base.Add(2*time.Hour).Equal(points[0].SnapshotTime))
	assert.Equal(t, 22, points[0].UsersWithDebt)
	require.Len(t, points[0].Buckets, len(healthfactor.Bands))
	assert.Equal(t, healthfactor.Bands[0].Label, points[0].Buckets[0].Bucket)
	assert.Equal(t, 2, points[0].Buckets[0].Count)
}
