package ports

import "github.com/wisdom-oss/service-swat-collector/internal/domain"

// Producer streams points from a data source into the pipeline.
type Producer interface {
	Start(out chan<- domain.Point) error
	Stop() error
}
