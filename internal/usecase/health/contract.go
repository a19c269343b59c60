package health

import "context"

// DBPinger verifies portfolio database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// KVPinger verifies query store connectivity.
type KVPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker verifies embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
