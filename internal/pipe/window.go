package pipe

// Window tracks messages sent but not yet acknowledged by the client.
//
// The client acknowledges every ClientWindow messages. The sender may run
// up to twice that far ahead; past it, Waiting reports true and no further
// message may be sent until an Ack arrives. Acks belong to a generation:
// changing the window (SetAck) starts a new generation, and acks for older
// generations are ignored until the client confirms the new one with Sync.
type Window struct {
	client           int
	sent             int
	generation       uint32
	clientGeneration uint32
	enabled          bool
}

// NewWindow returns a window gating at twice clientWindow unacknowledged
// messages. A non-positive clientWindow disables flow control.
func NewWindow(clientWindow int) *Window {
	return &Window{client: clientWindow, enabled: clientWindow > 0}
}

// Sent records one message written to the client.
func (w *Window) Sent() {
	w.sent++
}

// Waiting reports whether the sender must wait for an acknowledgement.
func (w *Window) Waiting() bool {
	return w.enabled && w.sent > 2*w.client
}

// Outstanding returns the number of unacknowledged messages.
func (w *Window) Outstanding() int {
	return w.sent
}

// ClientWindow returns the window advertised to the client.
func (w *Window) ClientWindow() int {
	return w.client
}

// Generation returns the current window generation.
func (w *Window) Generation() uint32 {
	return w.generation
}

// Ack processes one acknowledgement. It reports whether the ack applied
// to the current generation.
func (w *Window) Ack() bool {
	if w.clientGeneration != w.generation {
		return false
	}
	w.sent -= w.client
	if w.sent < 0 {
		w.sent = 0
	}
	return true
}

// Sync records the generation confirmed by the client.
func (w *Window) Sync(generation uint32) {
	w.clientGeneration = generation
}

// SetAck starts a new generation with the given client window and resets
// the outstanding count. It returns the new generation, to be sent to the
// client.
func (w *Window) SetAck(clientWindow int) uint32 {
	w.generation++
	w.client = clientWindow
	w.enabled = clientWindow > 0
	w.sent = 0
	return w.generation
}
