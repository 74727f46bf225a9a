// Package telemetry wires OpenTelemetry trace export for ragdex.
//
// Every vector store operation opens a span through otel.Tracer. New
// installs an OTLP tracer provider globally when telemetry is enabled, so
// those spans reach the collector:
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Endpoints given as host:port use the gRPC exporter; http:// and https://
// URLs use the OTLP/HTTP exporter. Plaintext export is refused for
// non-local endpoints.
//
// Tests use NewTestTelemetry and inspect the recorded spans.
package telemetry
