// Package telemetry wires OpenTelemetry tracing and metrics for phisan.
//
// Spans cover one sanitize call ("pipeline.sanitize") and each detector
// invocation ("detect.<name>"). Span attributes carry counts and record
// IDs only; finding text never becomes an attribute.
//
// Telemetry is off by default. When enabled, traces and metrics are
// exported over OTLP (grpc or http/protobuf). Exporter setup failures mark
// the instance degraded and fall back to the global no-op providers.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans in memory.
package telemetry
