// Package liveness phones a remote endpoint with a growing interval and
// restarts the device when the network path is gone.
package liveness

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// DefaultURL is the ping endpoint of the original install.
const DefaultURL = "http://192.168.50.66/pico_ping/ping.html"

// DefaultStep is added to the interval after every successful ping.
const DefaultStep = 30 * time.Second

// Config controls the ping loop.
type Config struct {
	URL     string
	Step    time.Duration
	Max     time.Duration // 0 = unbounded
	Timeout time.Duration // per request
}

// Restarter recovers from a lost network path.
type Restarter interface {
	Restart(reason string)
}

// Observer is told about ping outcomes. status.Tracker satisfies it.
type Observer interface {
	PingSucceeded(at time.Time, next time.Duration)
	PingFailed()
}

// NextInterval returns the wait after a successful ping.
func NextInterval(cur, step, max time.Duration) time.Duration {
	next := cur + step
	if max > 0 && next > max {
		return max
	}
	return next
}

// Pinger runs the liveness loop.
type Pinger struct {
	cfg       Config
	client    *http.Client
	restarter Restarter
	obs       Observer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Pinger. obs may be nil.
func New(cfg Config, restarter Restarter, obs Observer) *Pinger {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Pinger{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		restarter: restarter,
		obs:       obs,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ping issues one GET. Only transport errors are returned; any HTTP
// response proves the network path works.
func (p *Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", p.cfg.URL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("liveness: %s answered %s", p.cfg.URL, resp.Status)
	}
	return nil
}

// Run pings immediately, then again after each interval, growing the
// interval by Step on every success. The first transport error calls the
// Restarter and Run returns that error. Run also returns when ctx is done.
func (p *Pinger) Run(ctx context.Context) error {
	var interval time.Duration
	for {
		if err := p.sleep(ctx, interval); err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("liveness: %v", err)
			if p.obs != nil {
				p.obs.PingFailed()
			}
			p.restarter.Restart(err.Error())
			return err
		}
		interval = NextInterval(interval, p.cfg.Step, p.cfg.Max)
		if p.obs != nil {
			p.obs.PingSucceeded(p.now(), interval)
		}
		log.Printf("liveness: ping ok, next in %v", interval)
	}
}
