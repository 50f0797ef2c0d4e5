package domain

import "time"

// Point is the canonical unit of telemetry flowing through the pipeline: one
// timestamped observation of a measurement, qualified by tags and carrying at
// least one field. A Point is immutable once constructed; NewPoint copies the
// tag and field maps so producers cannot mutate it after hand-off.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Timestamp   time.Time
}

// NewPoint validates and builds an immutable Point. Field values must be
// float64, int64, string or bool.
func NewPoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) (Point, error) {
	if measurement == "" {
		return Point{}, &ValidationError{Reason: "measurement must not be empty"}
	}
	if len(fields) == 0 {
		return Point{}, &ValidationError{Reason: "point must carry at least one field"}
	}

	fcopy := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v.(type) {
		case float64, int64, string, bool:
			fcopy[k] = v
		case int:
			fcopy[k] = int64(v.(int))
		default:
			return Point{}, &ValidationError{Reason: "unsupported field type for " + k}
		}
	}

	var tcopy map[string]string
	if len(tags) > 0 {
		tcopy = make(map[string]string, len(tags))
		for k, v := range tags {
			tcopy[k] = v
		}
	}

	return Point{
		Measurement: measurement,
		Tags:        tcopy,
		Fields:      fcopy,
		Timestamp:   ts,
	}, nil
}

// Validate re-checks the Point invariants, for points that were not built via
// NewPoint (e.g. decoded from the overflow spool).
func (p Point) Validate() error {
	if p.Measurement == "" {
		return &ValidationError{Reason: "measurement must not be empty"}
	}
	if len(p.Fields) == 0 {
		return &ValidationError{Reason: "point must carry at least one field"}
	}
	return nil
}

// WithTag returns a copy of the point carrying one additional tag.
func (p Point) WithTag(key, value string) Point {
	tags := make(map[string]string, len(p.Tags)+1)
	for k, v := range p.Tags {
		tags[k] = v
	}
	tags[key] = value
	p.Tags = tags
	return p
}

// Batch is an ordered group of points moved through the pipeline as a unit.
// Ownership transfers with the batch; a stage must not retain a reference
// after handing it downstream.
type Batch struct {
	// Points in submission order.
	Points []Point
	// OpenedAt is when the first point entered the batch, used for the
	// max-age trigger.
	OpenedAt time.Time
	// Key routes the batch to a writer shard. Batches emitted from the same
	// aggregation window key carry the same Key so their write order is
	// preserved.
	Key string
}
