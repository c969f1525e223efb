package booking

import "github.com/google/uuid"

type SetServiceRequest struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
}

type SearchLocationRequest struct {
	Query string `json:"query" validate:"required,min=2,max=200"`
}

type PickCandidateRequest struct {
	Lat         float64 `json:"lat" validate:"required,latitude"`
	Lng         float64 `json:"lng" validate:"required,longitude"`
	DisplayName string  `json:"display_name" validate:"required,max=500"`
}

type CoordinateLocationRequest struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lng float64 `json:"lng" validate:"required,longitude"`
}

type CityLocationRequest struct {
	City string `json:"city" validate:"required,max=100"`
}

// DeviceLocationRequest carries the device fix the client obtained, if any.
// An empty body means the device could not produce one.
type DeviceLocationRequest struct {
	Lat *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng *float64 `json:"lng" validate:"omitempty,longitude"`
}

type ToggleMaterialRequest struct {
	ItemID uuid.UUID `json:"item_id" validate:"required"`
}

type SetQuantityRequest struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity"`
}

type SetPaymentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,payment_method"`
}

type SetScheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,datetime=15:04"`
}

type SetDescriptionRequest struct {
	Description string `json:"description" validate:"max=2000"`
}

// SessionResponse reports the ledger's materials cost only. The booking
// total (base price + materials) exists solely on the assembled draft, so a
// display can never disagree with what submission charges.
type SessionResponse struct {
	Session       *Session `json:"session"`
	MaterialsCost int64    `json:"materials_cost"`
}

type PreviewResponse struct {
	Draft   *Draft   `json:"draft,omitempty"`
	Reasons []Reason `json:"reasons,omitempty"`
	Ready   bool     `json:"ready"`
}
