// Package channel defines the outbound delivery contract the
// dispatcher sends through. Implementations must classify failures as
// permanent (recipient unreachable) or transient (worth one retry);
// the dispatcher's failure handling hinges on that distinction.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// PermanentError indicates the recipient can never be reached again
// (blocked the bot, deleted their account). The dispatcher deactivates
// the subscriber and never retries.
type PermanentError struct {
	Recipient int64
	Message   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("recipient %d permanently unreachable: %s", e.Recipient, e.Message)
}

// IsPermanent reports whether err (or its chain) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// TransientError indicates a network-level delivery failure that may
// succeed on retry.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery error: %s", e.Message)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (or its chain) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Channel is the outbound message transport.
type Channel interface {
	// SendText delivers a text message to one recipient.
	SendText(ctx context.Context, recipient int64, text string) error

	// SendPhoto delivers an image with a caption to one recipient.
	SendPhoto(ctx context.Context, recipient int64, imageURL, caption string) error
}
