package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.GRPCAddr)
	require.Equal(t, 220*time.Millisecond, cfg.FlickerDelay)
	require.Zero(t, cfg.ReconcileTimeout)
	require.Empty(t, cfg.DatabaseDSN)
	require.ErrorContains(t, cfg.Validate(), "JWT_KEY")
}

func TestLoadFrom_Values(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFrom(map[string]string{
		"IK_JWT_KEY":           "k",
		"IK_ADMIN_EMAILS":      "a@x.io,B@x.io",
		"IK_FLICKER_DELAY":     "50ms",
		"IK_RECONCILE_TIMEOUT": "5s",
		"IK_DEV":               "true",
		"JWT_KEY":              "unprefixed is ignored",
	})
	require.NoError(t, err)
	require.Equal(t, "k", cfg.JWTKey)
	require.Equal(t, []string{"a@x.io", "B@x.io"}, cfg.AdminEmails)
	require.Equal(t, 50*time.Millisecond, cfg.FlickerDelay)
	require.Equal(t, 5*time.Second, cfg.ReconcileTimeout)
	require.True(t, cfg.Dev)
	require.NoError(t, cfg.Validate())
}

func TestLoadFrom_BadDuration(t *testing.T) {
	t.Parallel()
	_, err := LoadFrom(map[string]string{"IK_ACCESS_TTL": "soon"})
	require.Error(t, err)
}

func TestValidate_TLSPair(t *testing.T) {
	t.Parallel()
	cfg := Config{JWTKey: "k", GRPCAddr: ":1", AccessTTL: time.Minute, TLSCert: "c.pem"}
	require.ErrorContains(t, cfg.Validate(), "TLS")
	cfg.TLSKey = "k.pem"
	require.NoError(t, cfg.Validate())
}
