package messaging

import (
	"context"
	"log/slog"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// TurnProcessor runs one inbound message through the conversation flow and
// returns the replies to send. *flow.Driver satisfies this.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, from, body, buttonCode string) []models.OutgoingMessage
}

// ReceiptStore persists delivery receipts drained from a messaging service.
// store.Store satisfies this.
type ReceiptStore interface {
	AddReceipt(r models.Receipt) error
}

// Dispatcher consumes inbound responses from a messaging service, runs each
// one through the conversation driver, and sends the resulting messages back
// out through the same service. It also drains the service's receipt channel
// into the receipt store so sends never back up on a full buffer.
type Dispatcher struct {
	svc      Service
	driver   TurnProcessor
	receipts ReceiptStore
}

// NewDispatcher creates a Dispatcher connecting the given service, driver,
// and receipt store. A nil receipt store drains receipts without persisting.
func NewDispatcher(svc Service, driver TurnProcessor, receipts ReceiptStore) *Dispatcher {
	return &Dispatcher{svc: svc, driver: driver, receipts: receipts}
}

// Start launches the dispatch and receipt loops in goroutines. Both exit when
// their service channel closes or the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher starting response processing")

	go func() {
		defer slog.Info("Dispatcher stopped response processing")

		for {
			select {
			case response, ok := <-d.svc.Responses():
				if !ok {
					slog.Debug("Dispatcher responses channel closed")
					return
				}
				d.dispatch(ctx, response.From, response.Body, response.ButtonCode)

			case <-ctx.Done():
				slog.Debug("Dispatcher stopping due to context cancellation")
				return
			}
		}
	}()

	go func() {
		defer slog.Info("Dispatcher stopped receipt processing")

		for {
			select {
			case receipt, ok := <-d.svc.Receipts():
				if !ok {
					slog.Debug("Dispatcher receipts channel closed")
					return
				}
				if d.receipts == nil {
					continue
				}
				if err := d.receipts.AddReceipt(receipt); err != nil {
					slog.Error("Dispatcher failed to persist receipt", "error", err, "to", receipt.To)
				}

			case <-ctx.Done():
				slog.Debug("Dispatcher receipt loop stopping due to context cancellation")
				return
			}
		}
	}()
}

// Dispatch runs one inbound message through the driver and sends the replies.
// It is exposed for transports that deliver messages synchronously (e.g. a
// webhook handler dispatching in its own goroutine).
func (d *Dispatcher) Dispatch(ctx context.Context, from, body, buttonCode string) {
	d.dispatch(ctx, from, body, buttonCode)
}

func (d *Dispatcher) dispatch(ctx context.Context, from, body, buttonCode string) {
	canonicalFrom, err := d.svc.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Error("Dispatcher sender validation failed", "error", err, "from", from)
		return
	}

	messages := d.driver.ProcessTurn(ctx, canonicalFrom, body, buttonCode)
	for _, msg := range messages {
		if err := d.svc.Send(ctx, msg); err != nil {
			slog.Error("Dispatcher failed to send reply", "error", err, "to", msg.To)
		}
	}
}
