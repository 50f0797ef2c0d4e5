package notify

import (
	"context"
	"errors"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// LogSender is the fallback channel when no webhook is configured: alerts end
// up in the service log only.
type LogSender struct {
	Obs ports.Observability
}

func (s LogSender) Alert(_ context.Context, kind, detail string, _ time.Time) error {
	s.Obs.LogError("alert", errors.New(detail), ports.Field{Key: "kind", Value: kind})
	return nil
}

func (s LogSender) Resolved(context.Context) error {
	s.Obs.LogInfo("alert_resolved")
	return nil
}

var _ Sender = LogSender{}
