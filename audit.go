package teamgate

import (
	"io"
	"time"

	"github.com/MrEthical07/teamgate/internal/audit"
	"github.com/MrEthical07/teamgate/secret"
)

// Outcome records whether a secret was sent or its issuance was blocked
// by the resend cooldown.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeBlocked Outcome = "blocked"
)

// AuditEntry is one append-only record of a secret issuance attempt. The
// audit log is telemetry: nothing reads it back to make a decision.
type AuditEntry struct {
	ID            string         `json:"id"`
	AccountID     string         `json:"account_id"`
	Purpose       secret.Purpose `json:"purpose"`
	SourceAddress string         `json:"source_address,omitempty"`
	Outcome       Outcome        `json:"outcome"`
	Timestamp     time.Time      `json:"timestamp"`
}

// AuditSink receives audit entries from the Engine's dispatcher.
type AuditSink = audit.Sink[AuditEntry]

type (
	// NoOpSink drops audit entries.
	NoOpSink = audit.NoOpSink[AuditEntry]
	// ChannelSink buffers audit entries in a channel.
	ChannelSink = audit.ChannelSink[AuditEntry]
	// JSONWriterSink writes one JSON object per audit entry.
	JSONWriterSink = audit.JSONWriterSink[AuditEntry]
	// MultiSink fans audit entries out to several sinks.
	MultiSink = audit.MultiSink[AuditEntry]
)

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink[AuditEntry](buffer)
}

// NewJSONWriterSink returns a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink[AuditEntry](w)
}
