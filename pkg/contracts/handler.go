package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Worker is a long-running background loop started alongside the HTTP server.
// Start blocks until ctx is cancelled; Close releases its resources afterwards.
type Worker interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
}
