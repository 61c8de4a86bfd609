//go:build tinygo

package kernel

func bindThread(t *Thread, fn func()) { fn() }

// self cannot identify goroutines on TinyGo, callers trust s.current.
func (s *System) self() (*Thread, bool) { return nil, false }
