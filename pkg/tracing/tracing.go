// Package tracing holds the single shared Tracer every worker package
// starts spans from, mirroring the teacher's package-level
// otel.Tracer("hermod-engine") in pkg/engine/engine.go.
package tracing

import "go.opentelemetry.io/otel"

// Tracer is the engine-wide tracer. No SDK/exporter is wired by this
// package: an app wanting traces exported configures a TracerProvider at
// startup (outside core, per spec's excluded observability backend); with
// none configured, spans started from Tracer are no-ops.
var Tracer = otel.Tracer("myreplicate")
