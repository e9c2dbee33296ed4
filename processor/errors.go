package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bookflow/internal/symbols"
	"bookflow/models"
)

var (
	// ErrUnknownChannel is returned for data on a channel id that was never
	// acknowledged in the current session.
	ErrUnknownChannel = symbols.ErrUnknownChannel
	// ErrOutOfOrderDelta is returned for a delta on an instrument that has no
	// snapshot yet. The delta is dropped.
	ErrOutOfOrderDelta = errors.New("delta before snapshot")
	// ErrChecksumMismatch is returned together with the emitted book when the
	// reconstructed state does not match the exchange checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTimestampRegression is returned together with the emitted book when
	// a delta is older than state already applied.
	ErrTimestampRegression = errors.New("exchange timestamp regressed")
	// ErrSessionClosed is returned by a Session after Close.
	ErrSessionClosed = errors.New("session closed")
)

// MessageError ties a per-message failure to the stream, channel and
// instrument it occurred on. Err may join several sentinel errors.
type MessageError struct {
	Stream     models.ChannelKind
	ChannelID  int64
	Instrument models.Instrument
	Err        error
}

func (e *MessageError) Error() string {
	if e.Instrument.IsZero() {
		return fmt.Sprintf("%s channel %d: %v", e.Stream, e.ChannelID, e.Err)
	}
	return fmt.Sprintf("%s channel %d (%s): %v", e.Stream, e.ChannelID, e.Instrument, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

var alertKinds = []struct {
	err  error
	kind models.AlertKind
}{
	{ErrUnknownChannel, models.AlertUnknownChannel},
	{ErrOutOfOrderDelta, models.AlertOutOfOrderDelta},
	{ErrChecksumMismatch, models.AlertChecksumMismatch},
	{ErrTimestampRegression, models.AlertTimestampRegressed},
}

// Kinds lists the alert kinds carried by the error.
func (e *MessageError) Kinds() []models.AlertKind {
	var kinds []models.AlertKind
	for _, k := range alertKinds {
		if errors.Is(e.Err, k.err) {
			kinds = append(kinds, k.kind)
		}
	}
	return kinds
}

// Alerts converts err into one diagnostic record per alert kind it carries.
// Errors that are not a MessageError produce no alerts.
func Alerts(vendor string, err error, now time.Time) []models.Alert {
	var msgErr *MessageError
	if !errors.As(err, &msgErr) {
		return nil
	}

	kinds := msgErr.Kinds()
	out := make([]models.Alert, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, models.Alert{
			ID:         uuid.NewString(),
			Kind:       kind,
			Vendor:     vendor,
			Instrument: msgErr.Instrument,
			ChannelID:  msgErr.ChannelID,
			Stream:     msgErr.Stream,
			Message:    msgErr.Error(),
			Timestamp:  now,
		})
	}
	return out
}
