package server

// gate bounds the number of concurrent connections. A buffered channel makes
// the try-acquire non-blocking: the accept loop is never held up by a full
// server.
type gate struct {
	slots chan struct{}
}

func newGate(capacity int) *gate {
	return &gate{slots: make(chan struct{}, capacity)}
}

// TryAcquire claims a slot. Returns false immediately when all slots are
// held.
func (g *gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot. Releasing a gate with no held slots is a no-op.
func (g *gate) Release() {
	select {
	case <-g.slots:
	default:
	}
}

func (g *gate) Load() int {
	return len(g.slots)
}

func (g *gate) Capacity() int {
	return cap(g.slots)
}
