// Package messaging delivers one-time passcodes out of band. Delivery is
// best-effort and asynchronous: the HTTP response never waits on it, and a
// failed send only produces a log line, because the generated record remains
// valid and the client can request a fresh code.
package messaging

import "context"

// Channel is the delivery transport for an OTP.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound passcode delivery.
type Message struct {
	Channel     Channel
	Destination string
	Code        string
}

// Sender performs the actual delivery. Implementations wrap the email/SMS
// providers, which are external collaborators.
type Sender interface {
	SendOTP(ctx context.Context, msg Message) error
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Info(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}
