package otelcol

import (
	"testing"

	"reviewcamp/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx/fxtest"
)

func TestProvidersFallBackToGlobals(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{AppName: "reviewcamp"}

	tp, err := NewTracerProvider(lc, cfg)
	require.NoError(t, err)
	require.Equal(t, otel.GetTracerProvider(), tp)
	require.Equal(t, otel.GetMeterProvider(), NewMeterProvider(lc, cfg))
}

func TestProvideMetricShutsDown(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{AppName: "reviewcamp"}
	cfg.Otel.Addr = "localhost:4317"

	mp := NewMeterProvider(lc, cfg)
	require.NotNil(t, mp)
	lc.RequireStart()
	lc.RequireStop()
}
