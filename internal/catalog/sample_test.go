package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-estimator/internal/catalog"
)

func TestSeedSamplesIsRepeatable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, skipped, err := catalog.SeedSamples(ctx, svc)
	require.NoError(t, err)
	require.Equal(t, 14, created)
	require.Zero(t, skipped)

	created, skipped, err = catalog.SeedSamples(ctx, svc, catalog.TierHomeowner)
	require.NoError(t, err)
	require.Zero(t, created)
	require.Equal(t, 7, skipped)

	item, err := svc.GetByCodeAndTier(ctx, "drw-rmo", "INSURANCE", false)
	require.NoError(t, err)
	require.Equal(t, "0.85", item.UnitPrice.String())

	dehu, err := svc.GetByCodeAndTier(ctx, "DEHU-L", "HOMEOWNER", false)
	require.NoError(t, err)
	require.Equal(t, "65", dehu.UnitPrice.String())
}
