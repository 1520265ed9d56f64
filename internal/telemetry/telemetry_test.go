package telemetry

import (
	"context"
	"testing"

	"github.com/ganz677/wb/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Parallel()

	shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected shutdown func")
	}
	shutdown()
}

func TestInitWithEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{Endpoint: "localhost:4318", Insecure: true})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	shutdown()
}
