package lifecycle

import (
	"context"
	"time"
)

// Reaper runs the background idle-session sweep and broadcast-bus GC of
// §4.G on independent timers, terminating promptly on context
// cancellation (§5: background tasks drop their timers and return on a
// single shutdown signal).
type Reaper struct {
	lc *Lifecycle

	SessionTimeout         time.Duration
	SessionRecycleInterval time.Duration
	ChannelRecycleInterval time.Duration

	// NotifyRecycleInterval is the expiry-sweep cadence for the server-wide
	// notify bus (spec.md §6 default 300s). Zero reuses
	// ChannelRecycleInterval.
	NotifyRecycleInterval time.Duration

	// OnReaped, when set, observes the number of sessions logged out by
	// each sweep (wired to metrics by the daemon).
	OnReaped func(count int)
}

// NewReaper returns a reaper bound to lc, using the given intervals
// (spec.md §6 defaults: 180s / 180s / 300s).
func NewReaper(lc *Lifecycle, sessionTimeout, sessionRecycle, channelRecycle time.Duration) *Reaper {
	return &Reaper{
		lc:                     lc,
		SessionTimeout:         sessionTimeout,
		SessionRecycleInterval: sessionRecycle,
		ChannelRecycleInterval: channelRecycle,
	}
}

// Run blocks, driving the sweep and the GC cadences until ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) {
	sweep := time.NewTicker(r.SessionRecycleInterval)
	defer sweep.Stop()
	slowGC := time.NewTicker(r.ChannelRecycleInterval)
	defer slowGC.Stop()
	notifyInterval := r.NotifyRecycleInterval
	if notifyInterval <= 0 {
		notifyInterval = r.ChannelRecycleInterval
	}
	notifyGC := time.NewTicker(notifyInterval)
	defer notifyGC.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			r.sweepOnce(time.Now())
		case <-slowGC.C:
			r.gcChannelsOnce()
		case <-notifyGC.C:
			r.gcNotifyOnce()
		}
	}
}

// sweepOnce logs out every session idle longer than SessionTimeout, then
// reclaims broadcast-bus entries every subscriber has already read past
// (§4.G: "the broadcast bus GC runs on the same cadence"). Returns the
// number of sessions reaped.
func (r *Reaper) sweepOnce(now time.Time) int {
	reaped := 0
	for _, s := range r.lc.Sessions.Iter() {
		if s.IdleSeconds(now) > int64(r.SessionTimeout/time.Second) {
			_ = r.lc.Logout(s.UserID)
			reaped++
		}
	}
	for _, ch := range r.lc.Channels.List() {
		ch.GCBefore()
	}
	if r.lc.Notify != nil {
		// With nobody online the min cursor is undefined; orphaned messages
		// are left for the expiry sweep rather than reclaimed by guesswork.
		if min, ok := r.lc.minNotifyCursor(); ok {
			r.lc.Notify.RemoveBefore(min)
		}
	}
	if r.OnReaped != nil && reaped > 0 {
		r.OnReaped(reaped)
	}
	return reaped
}

// gcChannelsOnce drops expired channel-bus messages on the slower cadence
// (§4.G, default 300s), independent of any subscriber's cursor.
func (r *Reaper) gcChannelsOnce() {
	for _, ch := range r.lc.Channels.List() {
		ch.GCInvalid()
	}
}

// gcNotifyOnce is the expiry sweep for the server-wide notify bus, on its
// own cadence.
func (r *Reaper) gcNotifyOnce() {
	if r.lc.Notify != nil {
		r.lc.Notify.RemoveInvalid()
	}
}
