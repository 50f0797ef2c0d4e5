package ports

import (
	"context"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
)

// Sink persists a batch of points as one transactional write. Implementations
// wrap retryable failures in *domain.SinkTransientError.
type Sink interface {
	WriteBatch(ctx context.Context, points []domain.Point) error
	Name() string
}
