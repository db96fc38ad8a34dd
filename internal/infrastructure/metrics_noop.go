package infrastructure

import (
	"context"
	"net/http"
	"time"
)

type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordEmit(_ context.Context, _ string) {
}

func (n *NoOpMetrics) RecordClaim(_ context.Context, _, _ int, _ time.Duration) {
}

func (n *NoOpMetrics) RecordDispatch(_ context.Context, _, _ string, _ bool, _ time.Duration) {
}

func (n *NoOpMetrics) RecordDeadLetter(_ context.Context, _ string) {
}

func (n *NoOpMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (n *NoOpMetrics) Shutdown(_ context.Context) error {
	return nil
}
