package booking

import (
	"fmt"
	"time"

	"github.com/fixpoint/fixpoint-api/internal/domain/catalog"
	"github.com/fixpoint/fixpoint-api/internal/domain/location"
	"github.com/fixpoint/fixpoint-api/internal/domain/selection"
)

// Reason is one user-correctable obstacle to submission.
type Reason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ReasonServiceRequired     = "service_required"
	ReasonMaterialsRequired   = "materials_required"
	ReasonMaterialUnavailable = "material_unavailable"
	ReasonLocationRequired    = "location_required"
	ReasonPaymentRequired     = "payment_required"
	ReasonScheduleInvalid     = "schedule_invalid"
)

// ServiceHours is the bookable start-time window, inclusive at both ends.
type ServiceHours struct {
	OpenMinute  int
	CloseMinute int
}

// ParseServiceHours parses "15:04"-formatted open and close times.
func ParseServiceHours(open, close string) (ServiceHours, error) {
	o, err := time.Parse("15:04", open)
	if err != nil {
		return ServiceHours{}, fmt.Errorf("parse open time %q: %w", open, err)
	}
	c, err := time.Parse("15:04", close)
	if err != nil {
		return ServiceHours{}, fmt.Errorf("parse close time %q: %w", close, err)
	}
	return ServiceHours{
		OpenMinute:  o.Hour()*60 + o.Minute(),
		CloseMinute: c.Hour()*60 + c.Minute(),
	}, nil
}

func (h ServiceHours) contains(minute int) bool {
	return minute >= h.OpenMinute && minute <= h.CloseMinute
}

// Assembler builds a submittable draft from the parts of a session,
// collecting every validation failure instead of stopping at the first.
type Assembler struct {
	hours ServiceHours
	now   func() time.Time
}

func NewAssembler(hours ServiceHours) *Assembler {
	return &Assembler{hours: hours, now: time.Now}
}

// Assemble validates all rules independently and returns either a complete
// draft or the full list of reasons. Total cost is computed here and nowhere
// else.
func (a *Assembler) Assemble(svc *catalog.Service, loc *location.ResolvedLocation, ledger *selection.Ledger, paymentMethod string, schedule *Schedule, description string) (*Draft, []Reason) {
	if ledger == nil {
		ledger = selection.NewLedger()
	}

	var reasons []Reason

	if svc == nil {
		reasons = append(reasons, Reason{Code: ReasonServiceRequired, Message: "select a service"})
	}

	if svc != nil && svc.RequiresInventory && ledger.IsEmpty() {
		reasons = append(reasons, Reason{Code: ReasonMaterialsRequired, Message: "this service requires at least one material"})
	}

	for _, line := range ledger.StaleLines() {
		reasons = append(reasons, Reason{
			Code:    ReasonMaterialUnavailable,
			Message: fmt.Sprintf("material unavailable: %s", line.Name),
		})
	}

	var warnings []string
	if loc == nil {
		reasons = append(reasons, Reason{Code: ReasonLocationRequired, Message: "set a service location"})
	} else if !loc.Confirmed {
		warnings = append(warnings, "location is outside the service region; please verify before submitting")
	}

	if paymentMethod == "" {
		reasons = append(reasons, Reason{Code: ReasonPaymentRequired, Message: "choose a payment method"})
	}

	scheduledAt, schedErr := a.validateSchedule(schedule)
	if schedErr != "" {
		reasons = append(reasons, Reason{Code: ReasonScheduleInvalid, Message: schedErr})
	}

	if len(reasons) > 0 {
		return nil, reasons
	}

	draft := &Draft{
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		BasePrice:     svc.BasePrice,
		ScheduledAt:   scheduledAt,
		Address:       loc.Address,
		Lat:           loc.Lat,
		Lng:           loc.Lng,
		PaymentMethod: paymentMethod,
		Description:   description,
		TotalCost:     svc.BasePrice + ledger.TotalCost(),
		Warnings:      warnings,
	}
	for _, line := range ledger.Lines {
		draft.Lines = append(draft.Lines, DraftLine{
			ItemID:    line.ItemID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPriceAtSelection,
			LineTotal: line.LineTotal(),
		})
	}
	return draft, nil
}

// validateSchedule returns the parsed timestamp or a user-readable problem.
func (a *Assembler) validateSchedule(s *Schedule) (time.Time, string) {
	if s == nil || s.Date == "" || s.Time == "" {
		return time.Time{}, "pick a date and time"
	}
	day, err := time.Parse("2006-01-02", s.Date)
	if err != nil {
		return time.Time{}, "date must look like 2026-01-31"
	}
	clock, err := time.Parse("15:04", s.Time)
	if err != nil {
		return time.Time{}, "time must look like 14:30"
	}
	today := a.now()
	todayDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(todayDay) {
		return time.Time{}, "date cannot be in the past"
	}
	minute := clock.Hour()*60 + clock.Minute()
	if !a.hours.contains(minute) {
		return time.Time{}, fmt.Sprintf("time must be between %02d:%02d and %02d:%02d",
			a.hours.OpenMinute/60, a.hours.OpenMinute%60,
			a.hours.CloseMinute/60, a.hours.CloseMinute%60)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC), ""
}
