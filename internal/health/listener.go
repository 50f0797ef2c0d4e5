package health

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"

	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// Listener serves the current health snapshot over a Unix domain socket so
// the probe can query the running process without touching its network
// surface.
type Listener struct {
	state *State
	path  string
	obs   ports.Observability
	ln    net.Listener
}

func NewListener(state *State, socketPath string, obs ports.Observability) *Listener {
	return &Listener{state: state, path: socketPath, obs: obs}
}

// Listen binds the socket and serves until Close. A stale socket file from a
// previous run is removed first.
func (l *Listener) Listen() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	_ = os.Remove(l.path)

	ln, err := net.Listen("unix", l.path)
	if err != nil {
		return err
	}
	l.ln = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		snap := l.state.Load()
		if err := json.NewEncoder(conn).Encode(snap); err != nil {
			l.obs.LogError("health_socket_write_failed", err)
		}
		_ = conn.Close()
	}
}

func (l *Listener) Close() error {
	var errs []error
	if l.ln != nil {
		errs = append(errs, l.ln.Close())
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
