package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHeaders(t *testing.T) {
	m := NewMailer(MailConfig{Host: "localhost", Port: 2525})
	msg := m.Message(Email{To: "ana@example.com", Subject: "Invoice INV-1", Text: "Total: 10.00 EUR"})

	assert.Equal(t, []string{"bookings@travel-booking.local"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"ana@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Invoice INV-1"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Total: 10.00 EUR")
}

func TestSendRejectsEmptyRecipient(t *testing.T) {
	m := NewMailer(MailConfig{Host: "localhost", Port: 2525})
	assert.Error(t, m.Send(context.Background(), Email{Subject: "x"}))
}
