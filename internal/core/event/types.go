package event

import "time"

// Island lifecycle events, emitted by the hydration orchestrator.

type IslandRegistered struct {
	ID       string
	ExecType string
	Strategy string
	At       time.Time
}

type IslandHydrated struct {
	ID       string
	ExecType string
	Took     time.Duration
	At       time.Time
}

type IslandFailed struct {
	ID       string
	ExecType string
	Error    string
	At       time.Time
}

type IslandUnregistered struct {
	ID string
	At time.Time
}
