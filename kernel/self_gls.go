//go:build !tinygo

package kernel

import "github.com/jtolds/gls"

var (
	glsMgr    = gls.NewContextManager()
	threadKey = gls.GenSym()
)

// bindThread runs fn with t recorded as the thread of the goroutine.
func bindThread(t *Thread, fn func()) {
	glsMgr.SetValues(gls.Values{threadKey: t}, fn)
}

// self returns the thread of s bound to the calling goroutine, nil for
// goroutines that are not threads of s.
func (s *System) self() (*Thread, bool) {
	v, ok := glsMgr.GetValue(threadKey)
	if !ok {
		return nil, true
	}
	t, _ := v.(*Thread)
	if t == nil || t.sys != s {
		return nil, true
	}
	return t, true
}
