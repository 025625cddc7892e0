package models

import "time"

// PresenceStaleAfter is the liveness threshold for the agent's heartbeat.
// A presence record older than this must be read as offline regardless of
// the stored online flag.
const PresenceStaleAfter = 90 * time.Second

// HeartbeatInterval is how often the agent refreshes its presence record.
const HeartbeatInterval = 30 * time.Second

// Presence is the agent liveness record at agent/status. World-readable,
// writable only by the agent's elevated credential.
type Presence struct {
	Online        bool   `json:"online"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	Version       string `json:"version,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
}

// IsStale reports whether the heartbeat is older than the liveness
// threshold.
func (p *Presence) IsStale(now time.Time) bool {
	if p == nil {
		return true
	}
	return now.Sub(time.UnixMilli(p.LastHeartbeat)) > PresenceStaleAfter
}

// EffectiveOnline is the Online flag readers must actually use: the stored
// flag masked by heartbeat staleness. A crashed agent never gets to write
// online:false, so the flag alone cannot be trusted.
func (p *Presence) EffectiveOnline(now time.Time) bool {
	return p != nil && p.Online && !p.IsStale(now)
}
