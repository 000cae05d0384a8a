// Package flight is the adapter to the external flight-booking provider
// (AFS).  The provider is slow, rate limited and fails independently of
// this service, so every call is bounded by a timeout, guarded by a circuit
// breaker and traced.  Failures are classified into ProviderRejected (the
// provider answered 4xx and the answer is final) and ProviderUnavailable
// (5xx, transport error, timeout or open breaker).
package flight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/travel-booking/internal/errs"
)

// Config holds provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration
	// SearchAttempts and RetryBackoff control retries of Search only.
	SearchAttempts int
	RetryBackoff   time.Duration
	// BreakerFailures consecutive unavailability errors open the breaker
	// for BreakerOpenFor.
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

// maxBody caps how much of a provider response is read.
const maxBody = 1 << 20

// Client talks to the provider over JSON/HTTPS.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	log     logrus.FieldLogger
}

// NewClient returns a provider client.  Zero config values fall back to
// conservative defaults.
func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SearchAttempts <= 0 {
		cfg.SearchAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	log = log.WithField("component", "flight-gateway")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		tracer: otel.Tracer("github.com/iliyamo/travel-booking/internal/flight"),
		log:    log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "afs",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A 4xx is a valid answer from a healthy provider.
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.Is(err, errs.ProviderUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return c
}

// Search lists flights for a route on a date.  Search is read-only and is
// retried with exponential backoff while the provider is unavailable.
func (c *Client) Search(ctx context.Context, origin, destination string, date time.Time) ([]Offer, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("date", date.Format("2006-01-02"))

	var out searchResponse
	err := retryWithBackoff(ctx, c.cfg.SearchAttempts, c.cfg.RetryBackoff, func() error {
		out = searchResponse{}
		_, err := c.do(ctx, "flight.Search", http.MethodGet, "/flights/search?"+q.Encode(), nil, &out)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Flights == nil {
		out.Flights = []Offer{}
	}
	return out.Flights, nil
}

// Book asks the provider to book the given flights for the traveler.
//
// Book is never retried.  The provider has no idempotency key, so repeating
// a request whose outcome is unknown (timeout, 5xx) may book the traveler
// twice.  Such outcomes are returned as ProviderUnavailable and must be
// resolved with Verify.
func (c *Client) Book(ctx context.Context, traveler Traveler, passportNumber string, flightIDs []string) (ProviderBooking, error) {
	body := bookRequest{
		FirstName:      traveler.FirstName,
		LastName:       traveler.LastName,
		Email:          traveler.Email,
		PassportNumber: passportNumber,
		FlightIDs:      flightIDs,
	}
	var out ProviderBooking
	raw, err := c.do(ctx, "flight.Book", http.MethodPost, "/bookings", body, &out)
	if err != nil {
		return ProviderBooking{}, err
	}
	out.Raw = raw
	return out, nil
}

// Verify looks up a provider booking by passenger last name and booking
// reference.  A booking the provider does not know is reported as
// ProviderRejected with status 404.
func (c *Client) Verify(ctx context.Context, lastName, bookingReference string) (ProviderBooking, error) {
	var out ProviderBooking
	raw, err := c.do(ctx, "flight.Verify", http.MethodPost, "/bookings/verify",
		verifyRequest{LastName: lastName, BookingReference: bookingReference}, &out)
	if err != nil {
		return ProviderBooking{}, err
	}
	out.Raw = raw
	return out, nil
}

// do performs one guarded, traced HTTP exchange and decodes a 2xx body
// into out.  It returns the raw body on success.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("afs.path", path))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, op, err)
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, errs.Wrap(errs.Internal, op, err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-API-Key", c.cfg.APIKey)
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &errs.Error{Kind: errs.ProviderUnavailable, Op: op, Msg: "flight provider unreachable", Err: err}
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, &errs.Error{Kind: errs.ProviderUnavailable, Op: op, Msg: "flight provider response interrupted", Err: err}
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return body, classify(op, resp.StatusCode, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &errs.Error{Kind: errs.ProviderUnavailable, Op: op, Msg: "flight provider circuit open", Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.KindOf(err).String())
		c.log.WithFields(logrus.Fields{"op": op, "kind": errs.KindOf(err).String()}).WithError(err).Warn("flight provider call failed")
		return nil, err
	}

	body := res.([]byte)
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			err = &errs.Error{Kind: errs.ProviderUnavailable, Op: op, Msg: "flight provider returned malformed JSON", Err: err}
			span.SetStatus(codes.Error, "decode")
			return nil, err
		}
	}
	span.SetStatus(codes.Ok, "")
	return body, nil
}

// classify maps a provider status code onto the error taxonomy.  The
// status and body are kept verbatim for callers that surface them.
func classify(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500:
		return &errs.Error{
			Kind:            errs.ProviderRejected,
			Op:              op,
			Msg:             fmt.Sprintf("flight provider rejected the request (%d)", status),
			ProviderStatus:  status,
			ProviderPayload: body,
		}
	default:
		return &errs.Error{
			Kind:            errs.ProviderUnavailable,
			Op:              op,
			Msg:             fmt.Sprintf("flight provider unavailable (%d)", status),
			ProviderStatus:  status,
			ProviderPayload: body,
		}
	}
}

// retryWithBackoff runs operation up to attempts times, doubling the wait
// after each ProviderUnavailable failure.  Other errors and an open breaker
// stop immediately.
func retryWithBackoff(ctx context.Context, attempts int, backoff time.Duration, operation func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = operation()
		if err == nil || !errs.Is(err, errs.ProviderUnavailable) || errors.Is(err, gobreaker.ErrOpenState) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
