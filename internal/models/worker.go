package models

// Worker status values. A worker is non-terminal while starting or ready.
const (
	StatusStarting = "starting"
	StatusReady    = "ready"
	StatusCrashed  = "crashed"
	StatusStopped  = "stopped"
)

// Worker is the externally visible state of one worker slot.
type Worker struct {
	Slot     int    `json:"slot"`
	Pid      int    `json:"pid"`
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Restarts int    `json:"restarts"`
}

// Event is one supervisor log event, kept in the in-memory ring buffer.
type Event struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Worker    string `json:"worker,omitempty"`
}
