package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("ORDERS_ENDPOINT", "https://script.example/pedidos")
	t.Setenv("PAYMENTS_ENDPOINT", "https://script.example/pagamentos")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, interval)
	assert.Equal(t, 30*time.Second, cfg.RenewalInitialDelay)
	assert.Equal(t, 60*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 100, cfg.RenewalAmount)
	assert.Equal(t, 12.0, cfg.RenewalPrice)
	assert.Equal(t, "258", cfg.CountryCode)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.False(t, cfg.DatabaseEnabled())
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoadConfig_IntervalOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RENEWAL_INTERVAL_MS", "60000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	interval, _ := cfg.Interval()
	assert.Equal(t, time.Minute, interval)

	setRequired(t)
	t.Setenv("RENEWAL_INTERVAL_MS", "60000")
	t.Setenv("RENEWAL_INTERVAL", "15m")

	cfg, err = LoadConfig()
	require.NoError(t, err)
	interval, _ = cfg.Interval()
	assert.Equal(t, 15*time.Minute, interval)
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"zero interval":     {"RENEWAL_INTERVAL_MS", "0"},
		"garbage duration":  {"RENEWAL_INTERVAL", "hourly"},
		"bad group pricing": {"GROUP_RENEWAL_PRICES", "vip=abc"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(kv[0], kv[1])

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_RequiresEndpoints(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("ORDERS_ENDPOINT", "")
	t.Setenv("PAYMENTS_ENDPOINT", "https://script.example/pagamentos")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDERS_ENDPOINT")
}

func TestGroupPrices(t *testing.T) {
	cfg := &Config{GroupRenewalPrices: " vip=10, revenda = 11.5 ,"}

	prices, err := cfg.GroupPrices()

	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"vip": 10, "revenda": 11.5}, prices)
}

func TestAllowedNetworks(t *testing.T) {
	cfg := &Config{AllowedCIDRs: "10.0.0.0/8, 127.0.0.1,,"}

	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.AllowedNetworks())
}
