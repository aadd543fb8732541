package sync

import (
	"github.com/rs/zerolog"
)

// IndicatorState is the four-state sync display.
type IndicatorState string

const (
	IndicatorOnline  IndicatorState = "online"
	IndicatorOffline IndicatorState = "offline"
	IndicatorSyncing IndicatorState = "syncing"
	IndicatorError   IndicatorState = "error"
)

// Valid reports whether s is a known indicator state.
func (s IndicatorState) Valid() bool {
	switch s {
	case IndicatorOnline, IndicatorOffline, IndicatorSyncing, IndicatorError:
		return true
	}
	return false
}

// IndicatorFunc adapts a function to the Indicator interface.
type IndicatorFunc func(state IndicatorState)

// SetIndicator calls f.
func (f IndicatorFunc) SetIndicator(state IndicatorState) {
	f(state)
}

// MultiIndicator fans state changes and results out to several indicators.
type MultiIndicator []Indicator

// SetIndicator implements Indicator.
func (m MultiIndicator) SetIndicator(state IndicatorState) {
	for _, ind := range m {
		if ind != nil {
			ind.SetIndicator(state)
		}
	}
}

// SyncComplete forwards res to members that observe results.
func (m MultiIndicator) SyncComplete(res Result) {
	for _, ind := range m {
		if obs, ok := ind.(ResultObserver); ok {
			obs.SyncComplete(res)
		}
	}
}

// LogIndicator writes indicator changes and pass summaries to a logger.
type LogIndicator struct {
	Logger zerolog.Logger
}

// SetIndicator implements Indicator.
func (l LogIndicator) SetIndicator(state IndicatorState) {
	l.Logger.Debug().Str("indicator", string(state)).Msg("indicator changed")
}

// SyncComplete implements ResultObserver.
func (l LogIndicator) SyncComplete(res Result) {
	evt := l.Logger.Info()
	if res.Failed > 0 {
		evt = l.Logger.Warn()
	}
	evt.Int("attempted", res.Attempted).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Msg(res.Summary())
}

var (
	_ Indicator      = MultiIndicator(nil)
	_ ResultObserver = MultiIndicator(nil)
	_ ResultObserver = LogIndicator{}
)
