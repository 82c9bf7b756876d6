package messaging

import "context"

// LogSender is the development [Sender]: it records the delivery instead of
// performing it. The code itself is never logged.
type LogSender struct {
	logger Logger
}

func NewLogSender(logger Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(_ context.Context, msg Message) error {
	if s.logger != nil {
		s.logger.Info("otp_delivery", map[string]any{
			"channel":     string(msg.Channel),
			"destination": msg.Destination,
		})
	}
	return nil
}
