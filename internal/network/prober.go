// Package network tracks reachability of the upload backend.
package network

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync/atomic"
	"time"
)

var ErrNoTarget = errors.New("network: no backend configured")

// ProbeFunc checks the backend once.
type ProbeFunc func(ctx context.Context) error

// Prober caches the result of the last probe. Connected never blocks;
// Reconnect probes again.
type Prober struct {
	probe     ProbeFunc
	timeout   time.Duration
	log       *slog.Logger
	connected atomic.Bool
	failures  atomic.Int64
}

func NewProber(probe ProbeFunc, timeout time.Duration, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{probe: probe, timeout: timeout, log: logger.With("component", "network")}
}

// DialProbe opens and closes a TCP connection to the host of rawURL.
func DialProbe(rawURL string) ProbeFunc {
	addr, err := HostPort(rawURL)
	return func(ctx context.Context) error {
		if err != nil {
			return err
		}
		var d net.Dialer
		conn, derr := d.DialContext(ctx, "tcp", addr)
		if derr != nil {
			return derr
		}
		return conn.Close()
	}
}

// HostPort extracts host:port from rawURL, defaulting the port by scheme.
func HostPort(rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrNoTarget
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", ErrNoTarget
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "postgres", "postgresql":
			port = "5432"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func (p *Prober) Connected() bool { return p.connected.Load() }

// Failures counts consecutive failed probes.
func (p *Prober) Failures() int64 { return p.failures.Load() }

func (p *Prober) Reconnect(ctx context.Context) error {
	if p.probe == nil {
		return ErrNoTarget
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.probe(ctx)
	was := p.connected.Swap(err == nil)
	if err != nil {
		if p.failures.Add(1) == 1 || was {
			p.log.Warn("backend unreachable", "err", err)
		}
		return err
	}
	p.failures.Store(0)
	if !was {
		p.log.Info("backend reachable")
	}
	return nil
}
