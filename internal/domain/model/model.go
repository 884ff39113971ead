// Package model contains domain models passed between layers.
package model

import "time"

// Player is an identity known to the directory.
type Player struct {
	ID        string // uuid
	Name      string // display name, masked before it leaves the service
	Phone     string // sign-in key
	CreatedAt time.Time
}

// Profile is what a ranking row shows about a player besides the time.
type Profile struct {
	Name       string
	LastPlayed time.Time // zero when the player never played
}

// BroadcastJob asks the dispatcher to publish a fresh ranking snapshot.
// The snapshot is built at dispatch time, so the job only carries the trigger.
type BroadcastJob struct {
	Reason      string
	TriggeredBy string
	Rank        int
	EnqueuedAt  time.Time
}

// Broadcast reasons.
const (
	ReasonImprovement = "improvement"
	ReasonRebuild     = "rebuild"
)
