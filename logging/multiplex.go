package logging

import "time"

// NewMultiplexedTracer creates a tracer that calls all tracers passed in.
// Nil tracers are skipped. It returns nil if no tracers remain.
func NewMultiplexedTracer(tracers ...*Tracer) *Tracer {
	var trs []*Tracer
	for _, t := range tracers {
		if t != nil {
			trs = append(trs, t)
		}
	}
	if len(trs) == 0 {
		return nil
	}
	if len(trs) == 1 {
		return trs[0]
	}
	return &Tracer{
		ChangedSenderState: func(old, new SenderState) {
			for _, t := range trs {
				if t.ChangedSenderState != nil {
					t.ChangedSenderState(old, new)
				}
			}
		},
		ChangedResponderState: func(old, new ResponderState) {
			for _, t := range trs {
				if t.ChangedResponderState != nil {
					t.ChangedResponderState(old, new)
				}
			}
		},
		StartedRun: func(r Role) {
			for _, t := range trs {
				if t.StartedRun != nil {
					t.StartedRun(r)
				}
			}
		},
		SentMessage: func(seq uint32, size ByteCount) {
			for _, t := range trs {
				if t.SentMessage != nil {
					t.SentMessage(seq, size)
				}
			}
		},
		AcknowledgedMessage: func(seq uint32, latency time.Duration) {
			for _, t := range trs {
				if t.AcknowledgedMessage != nil {
					t.AcknowledgedMessage(seq, latency)
				}
			}
		},
		UnexpectedAcknowledgement: func(seq uint32) {
			for _, t := range trs {
				if t.UnexpectedAcknowledgement != nil {
					t.UnexpectedAcknowledgement(seq)
				}
			}
		},
		ReceivedOutOfOrder: func(expected, received uint32) {
			for _, t := range trs {
				if t.ReceivedOutOfOrder != nil {
					t.ReceivedOutOfOrder(expected, received)
				}
			}
		},
		LostMessage: func(seq uint32) {
			for _, t := range trs {
				if t.LostMessage != nil {
					t.LostMessage(seq)
				}
			}
		},
		PausedSending: func(buffered ByteCount) {
			for _, t := range trs {
				if t.PausedSending != nil {
					t.PausedSending(buffered)
				}
			}
		},
		ProtocolViolation: func(expected, received uint32) {
			for _, t := range trs {
				if t.ProtocolViolation != nil {
					t.ProtocolViolation(expected, received)
				}
			}
		},
		ReceivedMessage: func(seq uint32, size ByteCount) {
			for _, t := range trs {
				if t.ReceivedMessage != nil {
					t.ReceivedMessage(seq, size)
				}
			}
		},
		DroppedReply: func(seq uint32) {
			for _, t := range trs {
				if t.DroppedReply != nil {
					t.DroppedReply(seq)
				}
			}
		},
		DroppedMalformedMessage: func(r Role, size ByteCount) {
			for _, t := range trs {
				if t.DroppedMalformedMessage != nil {
					t.DroppedMalformedMessage(r, size)
				}
			}
		},
		UpdatedSenderStats: func(s SenderStats) {
			for _, t := range trs {
				if t.UpdatedSenderStats != nil {
					t.UpdatedSenderStats(s)
				}
			}
		},
		UpdatedResponderStats: func(s ResponderStats) {
			for _, t := range trs {
				if t.UpdatedResponderStats != nil {
					t.UpdatedResponderStats(s)
				}
			}
		},
		Close: func() {
			for _, t := range trs {
				if t.Close != nil {
					t.Close()
				}
			}
		},
	}
}
