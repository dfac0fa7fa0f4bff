package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHIPPING_COST", "")
	t.Setenv("CATALOG_TIMEOUT", "")
	cfg := Load()
	assert.Equal(t, int64(500), cfg.ShippingCost)
	assert.Equal(t, 3*time.Second, cfg.CatalogTimeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SHIPPING_COST", "1200")
	t.Setenv("CATALOG_TIMEOUT", "250ms")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	cfg := Load()
	assert.Equal(t, int64(1200), cfg.ShippingCost)
	assert.Equal(t, 250*time.Millisecond, cfg.CatalogTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoadIgnoresBadValues(t *testing.T) {
	t.Setenv("SHIPPING_COST", "-3")
	t.Setenv("CART_COALESCE_WINDOW", "soon")
	cfg := Load()
	assert.Equal(t, int64(500), cfg.ShippingCost)
	assert.Equal(t, 800*time.Millisecond, cfg.CoalesceWindow)
}
