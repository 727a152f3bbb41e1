package ackhandler

// OutstandingMessages tracks messages that were sent but neither
// acknowledged nor declared lost.
// Entries are keyed by sequence number only. The value is the send time in
// milliseconds on the run clock.
type OutstandingMessages struct {
	sentAt map[uint32]uint32
}

func NewOutstandingMessages() *OutstandingMessages {
	return &OutstandingMessages{sentAt: make(map[uint32]uint32)}
}

// Record adds a sent message.
// It returns false if a message with the same sequence number was already
// outstanding. The entry then carries the new send time.
func (h *OutstandingMessages) Record(seq, sentAtMs uint32) bool {
	_, exists := h.sentAt[seq]
	h.sentAt[seq] = sentAtMs
	return !exists
}

// Acknowledge removes a message.
// It returns false if the message was not outstanding, e.g. because it
// already timed out.
func (h *OutstandingMessages) Acknowledge(seq uint32) bool {
	if _, ok := h.sentAt[seq]; !ok {
		return false
	}
	delete(h.sentAt, seq)
	return true
}

// SweepTimeouts removes all messages older than timeoutMs and returns how
// many were removed. onLost, if set, is called for every removed message.
// Ages are computed with wrapping arithmetic, so the run clock may overflow.
func (h *OutstandingMessages) SweepTimeouts(nowMs, timeoutMs uint32, onLost func(seq, sentAtMs uint32)) int {
	var removed int
	for seq, sentAt := range h.sentAt {
		if nowMs-sentAt <= timeoutMs {
			continue
		}
		delete(h.sentAt, seq)
		removed++
		if onLost != nil {
			onLost(seq, sentAt)
		}
	}
	return removed
}

// SentAt returns the send time of an outstanding message.
func (h *OutstandingMessages) SentAt(seq uint32) (uint32, bool) {
	t, ok := h.sentAt[seq]
	return t, ok
}

func (h *OutstandingMessages) Len() int { return len(h.sentAt) }

// Clear drops all outstanding messages.
func (h *OutstandingMessages) Clear() {
	clear(h.sentAt)
}
