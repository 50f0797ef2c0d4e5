package ports

import "github.com/wisdom-oss/service-swat-collector/internal/domain"

// PointQueue is the bounded, in-memory queue decoupling producers from the
// buffer drain loop.
type PointQueue interface {
	Enqueue(p domain.Point) bool
	DequeueBatch(max int) []domain.Point
	Len() int
}
