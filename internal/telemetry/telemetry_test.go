package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv(EndpointEnv, "")

	tel, err := Setup(context.Background(), "atf-report-gen", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Nil(t, tel.tracer)
	assert.Nil(t, tel.meter)
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Flush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Flush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}
