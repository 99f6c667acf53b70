package main

import (
	"context"
	"sync/atomic"

	"github.com/dgnsrekt/MaudeViewFX/internal/cdpcontrol"
	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
)

var errNotReady = &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "chart page not attached"}

// lateDashboard forwards to the orchestrator once it exists.
type lateDashboard struct {
	orch atomic.Pointer[dashboard.Orchestrator]
}

func (d *lateDashboard) set(o *dashboard.Orchestrator) { d.orch.Store(o) }

func (d *lateDashboard) Resize(ctx context.Context, width, height int) error {
	o := d.orch.Load()
	if o == nil {
		return dashboard.ErrStopped
	}
	return o.Resize(ctx, width, height)
}

func (d *lateDashboard) Snapshot(ctx context.Context) (dashboard.Snapshot, error) {
	o := d.orch.Load()
	if o == nil {
		return dashboard.Snapshot{}, dashboard.ErrStopped
	}
	return o.Snapshot(ctx)
}

// lateScreens captures the chart page once a CDP client is attached.
type lateScreens struct {
	client atomic.Pointer[cdpcontrol.Client]
}

func (s *lateScreens) set(c *cdpcontrol.Client) { s.client.Store(c) }

func (s *lateScreens) Screenshot(ctx context.Context) ([]byte, error) {
	c := s.client.Load()
	if c == nil {
		return nil, errNotReady
	}
	return c.Screenshot(ctx)
}
