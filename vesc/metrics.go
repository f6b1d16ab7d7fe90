package vesc

// Metrics receives counters from a Node. Methods are called from Run and
// must not block.
type Metrics interface {
	FrameReceived(cmd Command)
	FrameDropped(reason string)
	ReplySent(cmd Command)
	WatchdogTripped()
}

// Drop reasons passed to Metrics.FrameDropped.
const (
	DropStandardID        = "standard_id"
	DropNotAddressed      = "not_addressed"
	DropUnknownCommand    = "unknown_command"
	DropUnknownSubCommand = "unknown_subcommand"
	DropShortPayload      = "short_payload"
	DropRemoteDisabled    = "remote_disabled"
	DropReadError         = "read_error"
	DropWriteError        = "write_error"
)

type nopMetrics struct{}

func (nopMetrics) FrameReceived(Command) {}
func (nopMetrics) FrameDropped(string)   {}
func (nopMetrics) ReplySent(Command)     {}
func (nopMetrics) WatchdogTripped()      {}
