package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateRendersWaiverDecision(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	provider := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "billing@estate.local"})
	provider.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := provider.SendTemplate(context.Background(), []string{"ada@example.com"}, "waiver_decision", map[string]any{
		"resident_name":  "Ada",
		"decision":       "approved",
		"invoice_number": "INV-202601-A1",
		"waived_amount":  "500",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Late fee waiver decision")
	assert.Contains(t, gotMsg, "INV-202601-A1")
	assert.Contains(t, gotMsg, "was approved")
}

func TestSendRequiresRecipient(t *testing.T) {
	provider := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, provider.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}
