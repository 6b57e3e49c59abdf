//go:build integration

package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconsent/internal/registry"
	"healthconsent/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	cache := registry.NewRedisCache(rc.Client, time.Minute)

	_, err := cache.Get(ctx, "PAT-123456")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	rec := &registry.PatientRecord{
		PatientID: "PAT-123456",
		FirstName: "John",
		LastName:  "Doe",
		Address:   registry.Address{County: "Nairobi"},
	}
	require.NoError(t, cache.Set(ctx, "PAT-123456", rec))

	got, err := cache.Get(ctx, "PAT-123456")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	ttl, err := rc.Client.TTL(ctx, "registry:patient:PAT-123456").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
