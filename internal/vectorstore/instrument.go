package vectorstore

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
)

// instrumentation wraps a store operation in a span, Prometheus metrics and
// the store log fields.
type instrumentation struct {
	tracer     trace.Tracer
	backend    string
	collection string
}

// start begins span name ("Type.Op"). The returned func ends it; pass a
// pointer to the operation's named error.
func (in instrumentation) start(ctx context.Context, name string) (context.Context, func(*error)) {
	ctx = logging.WithStore(ctx, in.backend, in.collection)
	ctx, span := in.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("backend", in.backend),
		attribute.String("collection", in.collection),
	))
	op := name[strings.LastIndex(name, ".")+1:]
	begin := time.Now()

	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.End()
		observe(in.backend, op, begin, err)
	}
}
