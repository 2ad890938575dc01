package liveness

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(reason string)

// Restart calls f.
func (f RestarterFunc) Restart(reason string) { f(reason) }
