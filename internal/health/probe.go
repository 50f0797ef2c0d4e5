package health

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

const probeTimeout = 2 * time.Second

// Probe connects to the health socket of the running process, evaluates the
// returned snapshot and reports the result as an exit status: 0 for healthy,
// 1 otherwise, with a one-line reason on stderr. Intended to be invoked by a
// container health check.
func Probe(socketPath string, pol ports.Policy, now time.Time, stderr io.Writer) int {
	conn, err := net.DialTimeout("unix", socketPath, probeTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "health probe: cannot reach service socket: %v\n", err)
		return 1
	}
	defer conn.Close()
	_ = conn.SetDeadline(now.Add(probeTimeout))

	var snap Snapshot
	if err := json.NewDecoder(conn).Decode(&snap); err != nil {
		fmt.Fprintf(stderr, "health probe: bad snapshot: %v\n", err)
		return 1
	}

	status, reason := Evaluate(snap, pol, now)
	if status == Healthy {
		return 0
	}
	fmt.Fprintf(stderr, "%s: %s\n", status, reason)
	return 1
}
