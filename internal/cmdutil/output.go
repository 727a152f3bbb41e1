package cmdutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quic-go/dcbench"
	"github.com/quic-go/dcbench/internal/utils"
)

// CreateTrace creates a buffered trace file.
func CreateTrace(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return utils.NewBufferedWriteCloser(bufio.NewWriter(f), f), nil
}

// SenderSummary formats a one-line summary of a sender snapshot.
func SenderSummary(s dcbench.SenderStats) string {
	line := fmt.Sprintf("sender %s run=%d sent=%d received=%d lost=%d out-of-order=%d outstanding=%d | sent %s, confirmed %s, acks %s | latency %s | buffered %s",
		s.State, s.Run, s.MessagesSent, s.MessagesReceived, s.MessagesLost, s.OutOfOrder, s.Outstanding,
		utils.FormatRate(s.AvgSent), utils.FormatRate(s.AvgConfirmed), utils.FormatRate(s.AvgReceived),
		s.Latency.Round(time.Millisecond), utils.FormatBytes(int64(s.BufferedAmount)),
	)
	if s.Paused {
		line += " (paused)"
	}
	if s.Err != nil {
		line += fmt.Sprintf(" error: %v", s.Err)
	}
	return line
}

// ResponderSummary formats a one-line summary of a responder snapshot.
func ResponderSummary(s dcbench.ResponderStats) string {
	return fmt.Sprintf("echo %s received=%d last=%d malformed=%d dropped-replies=%d | received %s | buffered %s",
		s.State, s.MessagesReceived, s.LastSequence, s.Malformed, s.DroppedReplies,
		utils.FormatRate(s.AvgReceived), utils.FormatBytes(int64(s.BufferedAmount)),
	)
}
