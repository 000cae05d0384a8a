package handler

import (
	"time"

	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/model"
)

// hotelLegRequest names a room type or a specific room.
type hotelLegRequest struct {
	RoomID       uint64 `json:"roomId"`
	RoomTypeID   uint64 `json:"roomTypeId" validate:"required_without=RoomID"`
	CheckInDate  string `json:"checkInDate" validate:"required"`
	CheckOutDate string `json:"checkOutDate" validate:"required"`
	RoomsBooked  int    `json:"roomsBooked" validate:"required"`
}

func (r hotelLegRequest) leg() (booking.HotelLeg, error) {
	rng, err := inventory.ParseDateRange(r.CheckInDate, r.CheckOutDate)
	if err != nil {
		return booking.HotelLeg{}, err
	}
	return booking.HotelLeg{
		RoomID:      r.RoomID,
		RoomTypeID:  r.RoomTypeID,
		CheckIn:     rng.CheckIn,
		CheckOut:    rng.CheckOut,
		RoomsBooked: r.RoomsBooked,
	}, nil
}

type flightBookingRequest struct {
	FlightIDs      []string `json:"flightIds" validate:"required,min=1,dive,required"`
	PassportNumber string   `json:"passportNumber" validate:"required"`
}

type combinedBookingRequest struct {
	FlightIDs      []string          `json:"flightIds" validate:"omitempty,dive,required"`
	PassportNumber string            `json:"passportNumber"`
	HotelLegs      []hotelLegRequest `json:"hotelLegs" validate:"omitempty,dive"`
}

func (r combinedBookingRequest) legs() ([]booking.HotelLeg, error) {
	out := make([]booking.HotelLeg, 0, len(r.HotelLegs))
	for i, l := range r.HotelLegs {
		hl, err := l.leg()
		if err != nil {
			return nil, errs.Errorf(errs.KindOf(err), "handler.hotelLegs", "hotelLegs[%d]: %s", i, errs.Message(err))
		}
		out = append(out, hl)
	}
	return out, nil
}

type verifyRequest struct {
	LastName         string `json:"lastName" validate:"required"`
	BookingReference string `json:"bookingReference" validate:"required"`
}

type bookingResponse struct {
	BookingID      uint64         `json:"bookingId"`
	BookingDetails bookingDetails `json:"bookingDetails"`
}

type bookingDetails struct {
	ID                uint64            `json:"id"`
	UserID            uint64            `json:"userId"`
	Status            string            `json:"status"`
	TotalPriceCents   int64             `json:"totalPriceCents"`
	ProviderReference *string           `json:"providerReference,omitempty"`
	Hotels            []reservationView `json:"hotels"`
	Flights           []flightView      `json:"flights"`
	CreatedAt         time.Time         `json:"createdAt"`
}

type reservationView struct {
	ID                 uint64  `json:"id"`
	RoomTypeID         uint64  `json:"roomTypeId"`
	RoomID             *uint64 `json:"roomId,omitempty"`
	CheckInDate        string  `json:"checkInDate"`
	CheckOutDate       string  `json:"checkOutDate"`
	Nights             int     `json:"nights"`
	RoomsBooked        int     `json:"roomsBooked"`
	PricePerNightCents int64   `json:"pricePerNightCents"`
	Status             string  `json:"status"`
}

type flightView struct {
	ID            uint64     `json:"id"`
	FlightID      string     `json:"flightId"`
	Origin        string     `json:"origin,omitempty"`
	Destination   string     `json:"destination,omitempty"`
	DepartureTime *time.Time `json:"departureTime,omitempty"`
	ArrivalTime   *time.Time `json:"arrivalTime,omitempty"`
	PriceCents    int64      `json:"priceCents"`
	Status        string     `json:"status"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func detailsOf(b model.Booking) bookingDetails {
	d := bookingDetails{
		ID:                b.ID,
		UserID:            b.UserID,
		Status:            b.Status,
		TotalPriceCents:   b.TotalPriceCents,
		ProviderReference: b.ProviderReference,
		Hotels:            make([]reservationView, 0, len(b.Reservations)),
		Flights:           make([]flightView, 0, len(b.Flights)),
		CreatedAt:         b.CreatedAt,
	}
	for _, r := range b.Reservations {
		d.Hotels = append(d.Hotels, reservationView{
			ID:                 r.ID,
			RoomTypeID:         r.RoomTypeID,
			RoomID:             r.RoomID,
			CheckInDate:        r.CheckInDate.Format(inventory.DateLayout),
			CheckOutDate:       r.CheckOutDate.Format(inventory.DateLayout),
			Nights:             r.Nights(),
			RoomsBooked:        r.RoomsBooked,
			PricePerNightCents: r.PricePerNightCents,
			Status:             r.Status,
		})
	}
	for _, f := range b.Flights {
		d.Flights = append(d.Flights, flightView{
			ID:            f.ID,
			FlightID:      f.AFSFlightID,
			Origin:        f.Origin,
			Destination:   f.Destination,
			DepartureTime: optionalTime(f.DepartureTime),
			ArrivalTime:   optionalTime(f.ArrivalTime),
			PriceCents:    f.PriceCents,
			Status:        f.Status,
		})
	}
	return d
}

func responseOf(b model.Booking) bookingResponse {
	return bookingResponse{BookingID: b.ID, BookingDetails: detailsOf(b)}
}
