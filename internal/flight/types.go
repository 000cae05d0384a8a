package flight

import (
	"encoding/json"
	"math"
	"time"
)

// Offer is a flight as returned by the provider.
type Offer struct {
	ID            string    `json:"id"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	Price         float64   `json:"price"`
}

// PriceCents converts the provider's decimal price to cents.
func (o Offer) PriceCents() int64 {
	return int64(math.Round(o.Price * 100))
}

// Traveler identifies the passenger a provider booking is made for.
type Traveler struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// ProviderBooking is the provider's view of a booking.  Raw keeps the
// response body as received for the saga journal.
type ProviderBooking struct {
	BookingReference string          `json:"bookingReference"`
	Flights          []Offer         `json:"flights"`
	Raw              json.RawMessage `json:"-"`
}

type searchResponse struct {
	Flights []Offer `json:"flights"`
}

type bookRequest struct {
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	Email          string   `json:"email"`
	PassportNumber string   `json:"passportNumber"`
	FlightIDs      []string `json:"flightIds"`
}

type verifyRequest struct {
	LastName         string `json:"lastName"`
	BookingReference string `json:"bookingReference"`
}
