package influx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// Sink writes point batches to an InfluxDB 2.x backend using the blocking
// write API. Points are serialized to line protocol by the domain encoder so
// the wire format stays under our control.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	org    string
	bucket string
}

// NewSink connects to the backend at url. uncheckedTLS skips certificate
// verification, for deployments with self-signed backend certificates.
func NewSink(url, org, token, bucket string, uncheckedTLS bool) *Sink {
	options := influxdb2.DefaultOptions()
	if uncheckedTLS {
		options = options.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	client := influxdb2.NewClientWithOptions(url, token, options)
	return &Sink{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		org:    org,
		bucket: bucket,
	}
}

func (s *Sink) Name() string { return "influxdb" }

func (s *Sink) WriteBatch(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	lines := make([]string, len(points))
	for i, p := range points {
		lines[i] = p.EncodeLine()
	}

	if err := s.write.WriteRecord(ctx, lines...); err != nil {
		return classify(err)
	}
	return nil
}

// EnsureBucket creates the target bucket if it does not exist yet, mirroring
// first-start behavior against a fresh backend.
func (s *Sink) EnsureBucket(ctx context.Context) error {
	buckets := s.client.BucketsAPI()
	if b, err := buckets.FindBucketByName(ctx, s.bucket); err == nil && b != nil {
		return nil
	}

	org, err := s.client.OrganizationsAPI().FindOrganizationByName(ctx, s.org)
	if err != nil {
		return fmt.Errorf("resolve organization %q: %w", s.org, classify(err))
	}

	if _, err := buckets.CreateBucketWithName(ctx, org, s.bucket); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, classify(err))
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}

// classify wraps retryable failures in *domain.SinkTransientError. Anything
// that did not produce an HTTP status (DNS failure, refused connection,
// timeout) is considered transient, as are server-side statuses and rate
// limiting.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *influxhttp.Error
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests {
			return &domain.SinkTransientError{Err: err}
		}
		return err
	}
	return &domain.SinkTransientError{Err: err}
}

var _ ports.Sink = (*Sink)(nil)
