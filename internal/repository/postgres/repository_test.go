package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/domain/reserve"
	"lendingrisk/internal/testsupport"
	"lendingrisk/pkg/errors"
)

const testChain = "test-chain"

func testAnalysis(at time.Time, usersAtRisk int) *healthfactor.Analysis {
	hf := decimal.RequireFromString("1.2")
	return &healthfactor.Analysis{
		Summary: healthfactor.HealthFactorSummary{
			ChainID:            testChain,
			DataSource:         healthfactor.DataSource{PriceSource: healthfactor.PriceSource, SnapshotTimeUTC: at},
			TotalUsers:         3,
			UsersWithDebt:      2,
			UsersAtRisk:        usersAtRisk,
			TotalCollateralUSD: decimal.NewFromInt(150),
			TotalDebtUSD:       decimal.NewFromInt(100),
			AtRiskUsers: []healthfactor.UserHealthFactor{
				{UserAddress: "0xa", HealthFactor: &hf, TotalCollateralUSD: decimal.NewFromInt(150), TotalDebtUSD: decimal.NewFromInt(100)},
			},
			Distribution: []healthfactor.HealthFactorDistribution{
				{Bucket: "1.1-1.25", Count: 1, TotalCollateralUSD: decimal.NewFromInt(150), TotalDebtUSD: decimal.NewFromInt(100)},
			},
		},
	}
}

func TestAnalysisRepository_SaveAndGetLatest(t *testing.T) {
	db := testsupport.NewTestPostgres(t)
	repo := NewAnalysisRepository(db.Tx())
	ctx := context.Background()

	older := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	require.NoError(t, repo.SaveAnalysis(ctx, testAnalysis(older, 1)))
	require.NoError(t, repo.SaveAnalysis(ctx, testAnalysis(newer, 1)))

	// same snapshot again replaces the row
	require.NoError(t, repo.SaveAnalysis(ctx, testAnalysis(newer, 7)))

	got, err := repo.GetLatest(ctx, testChain)
	require.NoError(t, err)
	assert.True(t, newer.Equal(got.Summary.DataSource.SnapshotTimeUTC))
	assert.Equal(t, 7, got.Summary.UsersAtRisk)
	require.Len(t, got.Summary.AtRiskUsers, 1)
	assert.True(t, decimal.RequireFromString("1.2").Equal(*got.Summary.AtRiskUsers[0].HealthFactor))

	var rows int
	require.NoError(t, db.Tx().GetContext(ctx, &rows, `SELECT COUNT(*) FROM health_factor_analyses WHERE chain_id = $1`, testChain))
	assert.Equal(t, 2, rows)
}

func TestAnalysisRepository_GetLatestNotFound(t *testing.T) {
	db := testsupport.NewTestPostgres(t)
	repo := NewAnalysisRepository(db.Tx())

	_, err := repo.GetLatest(context.Background(), "no-such-chain")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDistributionRepository_History(t *testing.T) {
	db := testsupport.NewTestPostgres(t)
	repo := NewDistributionRepository(db.Tx())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a := testAnalysis(base.Add(time.Duration(i)*time.Hour), 1)
		require.NoError(t, repo.AppendDistribution(ctx, healthfactor.NewDistributionPoint(a.Summary)))
	}

	points, err := repo.GetDistributionHistory(ctx, testChain, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, base.Add(2*time.Hour).Equal(points[0].SnapshotTime))
	assert.True(t, base.Add(time.Hour).Equal(points[1].SnapshotTime))
	require.Len(t, points[0].Buckets, 1)
	assert.Equal(t, "1.1-1.25", points[0].Buckets[0].Bucket)
}

func testReserveSnapshot(at time.Time, borrowed string) reserve.Snapshot {
	s := reserve.NewSnapshot(testChain, "aave-v3-test",
		reserve.Asset{Symbol: "WETH", Address: "0xweth"},
		at, decimal.NewFromInt(100), decimal.RequireFromString(borrowed),
		decimal.NewNullDecimal(decimal.NewFromInt(2000)),
	)
	s.RateModel = &reserve.RateModel{
		OptimalUtilization:     decimal.RequireFromString("0.8"),
		BaseVariableBorrowRate: decimal.Zero,
		Slope1:                 decimal.RequireFromString("0.04"),
		Slope2:                 decimal.RequireFromString("0.75"),
	}
	return s
}

func TestReserveSnapshotRepository_UpsertIsIdempotent(t *testing.T) {
	db := testsupport.NewTestPostgres(t)
	repo := NewReserveSnapshotRepository(db.Tx())
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC)

	n, err := repo.UpsertSnapshots(ctx, []reserve.Snapshot{testReserveSnapshot(at, "40")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// same hour overwrites
	_, err = repo.UpsertSnapshots(ctx, []reserve.Snapshot{testReserveSnapshot(at.Add(20*time.Minute), "60")})
	require.NoError(t, err)

	latest, err := repo.GetLatest(ctx, testChain, "aave-v3-test", "0xWETH")
	require.NoError(t, err)
	assert.True(t, reserve.TruncateHour(at).Equal(latest.TimestampHour))
	assert.True(t, decimal.NewFromInt(60).Equal(latest.BorrowedAmount))
	assert.True(t, decimal.RequireFromString("0.6").Equal(latest.Utilization))
	require.NotNil(t, latest.RateModel)
	assert.True(t, decimal.RequireFromString("0.75").Equal(latest.RateModel.Slope2))

	history, err := repo.GetHistory(ctx, testChain, "aave-v3-test", "0xweth", at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReserveSnapshotRepository_GetLatestNotFound(t *testing.T) {
	db := testsupport.NewTestPostgres(t)
	repo := NewReserveSnapshotRepository(db.Tx())

	_, err := repo.GetLatest(context.Background(), testChain, "aave-v3-test", "0xnone")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
