package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
)

func TestBootstrapRequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("LOG_LEVEL", "error")

	a, err := bootstrap(context.Background())
	require.EqualError(t, err, "POSTGRES_DSN is required")
	require.Nil(t, a)
}

func TestBootstrapRejectsMalformedDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://%zz")
	t.Setenv("LOG_LEVEL", "error")

	_, err := bootstrap(context.Background())
	require.ErrorContains(t, err, "connect postgres")
}

func TestCloseAfterPartialStartup(t *testing.T) {
	a := &app{cfg: &config.Config{}, logger: zap.NewNop()}
	require.NotPanics(t, a.close)
}
