package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestInit_RejectsSampleRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := Init(ProviderConfig{SampleRatio: ratio}); err == nil {
			t.Errorf("Init(SampleRatio=%v) succeeded, want error", ratio)
		}
	}
}

func TestInit_Resource(t *testing.T) {
	restoreGlobals(t)
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=pi")

	tests := []struct {
		name        string
		cfg         ProviderConfig
		wantService string
	}{
		{"defaults as main uses them", ProviderConfig{}, "tapvox"},
		{"explicit name and version", ProviderConfig{ServiceName: "tapvox-kitchen", ServiceVersion: "1.2.0"}, "tapvox-kitchen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Registerer = prometheus.NewRegistry()
			tel, err := Init(tt.cfg)
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

			set := tel.Resource.Set()
			want := map[attribute.Key]string{
				"service.name":           tt.wantService,
				"telemetry.sdk.language": "go",
				"deployment.environment": "pi",
			}
			for k, v := range want {
				if got, ok := set.Value(k); !ok || got.AsString() != v {
					t.Errorf("resource %s = %q, want %q", k, got.AsString(), v)
				}
			}
		})
	}
}

func TestInit_ExportsToRegisterer(t *testing.T) {
	restoreGlobals(t)
	reg := prometheus.NewRegistry()
	tel, err := Init(ProviderConfig{Registerer: reg, ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordTrigger(context.Background(), "start")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if strings.Contains(f.GetName(), "trigger_transitions") {
			found = true
		}
	}
	if !found {
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		t.Errorf("trigger transitions not exported; got %v", names)
	}
}

func TestInit_SpansCarryTraceIDs(t *testing.T) {
	restoreGlobals(t)
	tel, err := Init(ProviderConfig{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, end := StartStage(context.Background(), "llm.stream")
	defer end(nil)
	if CorrelationID(ctx) == "" {
		t.Error("span started after Init has no trace id")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
