package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// NativeSender is the platform hook a device-resident build supplies to
// place an SMS through a local modem/SIM, the shape the rest of this
// module treats as opaque so it stays portable across host platforms.
type NativeSender interface {
	SendNative(ctx context.Context, to, body string, simSlot int) error
}

// NativeTransport sends through a device's own SIM radio via a
// NativeSender. It never reaches the network itself: it is a thin
// adapter that converts the sender's errors into apperrors sentinels.
type NativeTransport struct {
	sender NativeSender
}

// NewNativeTransport builds a NativeTransport over sender.
func NewNativeTransport(sender NativeSender) *NativeTransport {
	return &NativeTransport{sender: sender}
}

// Send places an SMS through simSlot.
func (t *NativeTransport) Send(ctx context.Context, to, body string, simSlot int) (SendResult, error) {
	if !ValidatePhone(to) {
		return SendResult{}, apperrors.ErrInvalidRecipient
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, apperrors.ErrTransportCancelled
	}
	if err := t.sender.SendNative(ctx, to, body, simSlot); err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", apperrors.ErrTransportFailed, err)
	}
	return SendResult{}, nil
}

// FakeNativeSender is an in-memory NativeSender for tests. FailNext, if
// set, is returned (and cleared) on the next call instead of recording
// the send.
type FakeNativeSender struct {
	mu       sync.Mutex
	Sent     []FakeSend
	FailNext error
}

// FakeSend records one call to SendNative.
type FakeSend struct {
	To      string
	Body    string
	SimSlot int
}

// SendNative implements NativeSender.
func (f *FakeNativeSender) SendNative(ctx context.Context, to, body string, simSlot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil
		return err
	}
	f.Sent = append(f.Sent, FakeSend{To: to, Body: body, SimSlot: simSlot})
	return nil
}

// Count returns how many sends were recorded.
func (f *FakeNativeSender) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
