// Package messaging provides pluggable WhatsApp transports and the dispatch
// loop that feeds inbound messages into the conversation driver.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// Constants for messaging service configuration.
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when an operation is attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything except digits during canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain-text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Send delivers a full outgoing message, including its template hint and
	// quick-reply buttons where the transport supports them.
	Send(ctx context.Context, msg models.OutgoingMessage) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming DSR messages.
	Responses() <-chan models.Response
}
