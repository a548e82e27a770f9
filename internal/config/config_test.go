package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeedProducts(t *testing.T) {
	seeds, err := ParseSeedProducts("p1:10:100, p2:5:20000")
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, SeedProduct{ProductID: "p1", Quantity: 10, UnitPrice: 100}, seeds[0])
	assert.Equal(t, SeedProduct{ProductID: "p2", Quantity: 5, UnitPrice: 20000}, seeds[1])
}

func TestParseSeedProductsEmpty(t *testing.T) {
	seeds, err := ParseSeedProducts("")
	require.NoError(t, err)
	assert.Empty(t, seeds)
}

func TestParseSeedProductsMalformed(t *testing.T) {
	cases := []string{
		"p1:10",
		"p1:ten:100",
		"p1:10:free",
		"p1:-1:100",
		"p1:10:0",
	}
	for _, raw := range cases {
		_, err := ParseSeedProducts(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BusMemory, cfg.Bus)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ReservationsMemory, cfg.Reservations)
	assert.Equal(t, int64(50000), cfg.PaymentLimit)
	assert.Equal(t, 3, cfg.PaymentMaxAttempts)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.NotEmpty(t, cfg.SeedProducts)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("BUS", "carrier-pigeon")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_LIMIT", "1000")
	t.Setenv("PAYMENT_TIMEOUT", "250ms")
	t.Setenv("SEED_PRODUCTS", "widget:3:42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cfg.PaymentLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.PaymentTimeout)
	require.Len(t, cfg.SeedProducts, 1)
	assert.Equal(t, "widget", cfg.SeedProducts[0].ProductID)
}
