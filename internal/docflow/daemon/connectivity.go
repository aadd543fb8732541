package daemon

import (
	"context"
	"sync/atomic"
	"time"

	docsync "github.com/pacetech/docflow/internal/docflow/sync"
)

// Pinger checks whether the remote answers. *remote.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor tracks whether the remote is reachable.
// It implements sync.Connectivity.
type Monitor struct {
	pinger Pinger
	online atomic.Bool
}

var _ docsync.Connectivity = (*Monitor)(nil)

// NewMonitor creates a monitor. A nil pinger is always online.
func NewMonitor(pinger Pinger) *Monitor {
	m := &Monitor{pinger: pinger}
	m.online.Store(true)
	return m
}

// Online implements sync.Connectivity.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Probe pings the remote and records the result. It returns the new state and
// whether it differs from the previous one.
func (m *Monitor) Probe(ctx context.Context) (online, changed bool) {
	online = true
	if m.pinger != nil {
		online = m.pinger.Ping(ctx) == nil
	}
	prev := m.online.Swap(online)
	return online, prev != online
}

// probe runs one bounded probe.
func (d *Daemon) probe() bool {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.ProbeTimeout)
	defer cancel()

	online, changed := d.monitor.Probe(ctx)
	if changed {
		d.logger.Info().Bool("online", online).Msg("connectivity changed")
	}
	return online
}

// watchConnectivity re-probes on every tick. Coming back online triggers a
// pass after the settle delay; going offline flips the indicator.
func (d *Daemon) watchConnectivity() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			wasOnline := d.monitor.Online()
			online := d.probe()
			if online == wasOnline {
				continue
			}

			d.publishConnectivity(online)
			if !online {
				continue
			}

			settle := time.NewTimer(d.config.SettleDelay)
			select {
			case <-d.ctx.Done():
				settle.Stop()
				return
			case <-settle.C:
				d.RequestSync(ReasonConnectivity)
			}
		}
	}
}

func (d *Daemon) publishConnectivity(online bool) {
	if d.config.Indicator == nil {
		return
	}
	if online {
		d.config.Indicator.SetIndicator(docsync.IndicatorOnline)
	} else {
		d.config.Indicator.SetIndicator(docsync.IndicatorOffline)
	}
}
