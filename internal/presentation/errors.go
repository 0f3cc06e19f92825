package presentation

import (
	"context"

	"hitlbot/internal/logging"
)

// ErrorReport describes a failure to show to the user. When MessageTS is set
// that message is replaced; otherwise a new message is posted in ThreadTS.
type ErrorReport struct {
	Operation string
	Err       error
	Channel   string
	ThreadTS  string
	MessageTS string
}

// ErrorReporter logs failures and notifies the user.
type ErrorReporter struct {
	messenger Messenger
	logger    logging.Logger
}

func NewErrorReporter(messenger Messenger, logger logging.Logger) *ErrorReporter {
	return &ErrorReporter{messenger: messenger, logger: logging.OrNop(logger)}
}

// FormatError returns the user-facing text for err.
func FormatError(err error) string {
	if err == nil {
		return ErrorPrefix + "unknown error"
	}
	return ErrorPrefix + err.Error()
}

// Report never fails; a notification error is logged.
func (r *ErrorReporter) Report(ctx context.Context, report ErrorReport) {
	logger := logging.FromContext(ctx, r.logger)
	logger.Error("%s failed: %v", report.Operation, report.Err)

	text := FormatError(report.Err)
	var err error
	if report.MessageTS != "" {
		err = r.messenger.UpdateMessage(ctx, report.Channel, report.MessageTS, text)
	} else {
		_, err = r.messenger.PostMessage(ctx, report.Channel, report.ThreadTS, text)
	}
	if err != nil {
		logger.Error("Failed to notify error in %s: %v", report.Channel, err)
	}
}
