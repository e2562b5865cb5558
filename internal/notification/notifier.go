// Package notification delivers trading alerts (fills, risk-guard pauses,
// session start/stop) to external channels: Telegram, generic webhooks, or
// the process log.
package notification

import (
	"context"
	"fmt"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert event kinds.
const (
	EventFill  = "fill"
	EventPause = "pause"
)

// Alert is one trading event headed for the operator. Backends render the
// structured fields their own way: Telegram formats a human message,
// webhooks post the fields as JSON.
type Alert struct {
	Level   AlertLevel
	Event   string
	Pair    string
	Message string

	// Fill details, set when Event is EventFill.
	Venue       string
	Side        string
	Qty         float64
	Price       float64
	RealizedPnL *float64 // nil on entries
	Reason      string   // signal reason that produced the trade
}

// FillAlert describes one executed order.
func FillAlert(venue, pair, side string, qty, price float64, realized *float64, reason string) Alert {
	a := Alert{
		Level:  AlertInfo,
		Event:  EventFill,
		Pair:   pair,
		Venue:  venue,
		Side:   side,
		Qty:    qty,
		Price:  price,
		Reason: reason,
	}
	a.RealizedPnL = realized
	a.Message = fmt.Sprintf("%s %.8f %s @ %.8f (%s)", side, qty, pair, price, reason)
	if realized != nil {
		a.Message += fmt.Sprintf(", realized %.4f", *realized)
	}
	return a
}

// PauseAlert reports that the risk guard stopped entries.
func PauseAlert(pair, reason string) Alert {
	return Alert{
		Level:   AlertCritical,
		Event:   EventPause,
		Pair:    pair,
		Message: reason,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s %s: %s", alert.Level, alert.Event, alert.Pair, alert.Message)
	return nil
}

// Fanout sends each alert to every backend, logging failures instead of
// returning them: a down Telegram must never stop the trading loop.
type Fanout struct {
	backends []Notifier
}

// NewFanout builds a fanout over the given backends.
func NewFanout(backends ...Notifier) *Fanout {
	return &Fanout{backends: backends}
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	for _, b := range f.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
	}
	return nil
}
