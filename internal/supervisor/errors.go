package supervisor

import "fmt"

// SpawnError is returned by Start when the OS refuses to spawn the
// child. Unrecoverable for that attempt.
type SpawnError struct {
	Binary string
	Reason string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %s", e.Binary, e.Reason)
}
