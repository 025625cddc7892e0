package models

import (
	"testing"
	"time"
)

func TestPresenceIsStale(t *testing.T) {
	now := time.Now()

	fresh := &Presence{Online: true, LastHeartbeat: now.Add(-30 * time.Second).UnixMilli()}
	if fresh.IsStale(now) {
		t.Error("30s-old heartbeat should not be stale")
	}

	stale := &Presence{Online: true, LastHeartbeat: now.Add(-2 * time.Minute).UnixMilli()}
	if !stale.IsStale(now) {
		t.Error("2m-old heartbeat should be stale")
	}

	var missing *Presence
	if !missing.IsStale(now) {
		t.Error("nil presence should be stale")
	}
}

func TestPresenceEffectiveOnline(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		presence *Presence
		want     bool
	}{
		{
			name:     "online and fresh",
			presence: &Presence{Online: true, LastHeartbeat: now.UnixMilli()},
			want:     true,
		},
		{
			// A crashed agent never writes online:false, so the stored flag
			// must be masked by staleness.
			name:     "online flag but stale heartbeat",
			presence: &Presence{Online: true, LastHeartbeat: now.Add(-3 * time.Minute).UnixMilli()},
			want:     false,
		},
		{
			name:     "offline and fresh",
			presence: &Presence{Online: false, LastHeartbeat: now.UnixMilli()},
			want:     false,
		},
		{
			name:     "no record",
			presence: nil,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.presence.EffectiveOnline(now); got != tt.want {
				t.Errorf("EffectiveOnline() = %v, want %v", got, tt.want)
			}
		})
	}
}
