package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

func TestPendingSMS(t *testing.T) {
	gw := &stubFullGateway{stubGateway: stubGateway{name: "afriksms"}}
	m := app.NewManager(gw, discardLogger())

	_, err := m.To("22890123456").From("Promo").Send(context.Background(), "hello")
	require.NoError(t, err)

	got := gw.lastSent()
	assert.Equal(t, "22890123456", got.Recipient)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "Promo", got.SenderID)

	_, err = m.To("22890123456").WithEmail(context.Background(), "hello", "a@b.c", "subj")
	require.NoError(t, err)
	assert.Equal(t, app.OpSendWithEmail, gw.ops[len(gw.ops)-1])
}

func TestPendingBulkSMS(t *testing.T) {
	gw := &stubFullGateway{stubGateway: stubGateway{name: "afriksms"}}
	m := app.NewManager(gw, discardLogger())
	phones := []string{"22890000001", "22890000002"}

	_, err := m.ToMany(phones).Send(context.Background(), "promo")
	require.NoError(t, err)

	var rendered []string
	_, err = m.ToMany(phones).SendPersonalized(context.Background(), func(phone string) string {
		rendered = append(rendered, phone)
		return "hi " + phone
	})
	require.NoError(t, err)

	assert.Equal(t, []string{app.OpSendBulk, app.OpSendPersonalized}, gw.ops)
	assert.Equal(t, phones, rendered)
}

func TestPendingWhatsApp(t *testing.T) {
	ctx := context.Background()

	t.Run("template wins over media", func(t *testing.T) {
		gw := &stubFullGateway{stubGateway: stubGateway{name: "twilio"}}
		m := app.NewManager(gw, discardLogger())

		_, err := m.WhatsAppTo("22890123456").
			Media("https://cdn/x.png", "cap").
			Template("HX1", map[string]string{"1": "a"}).
			Send(ctx, "ignored")
		require.NoError(t, err)
		assert.Equal(t, []string{app.OpSendTemplate}, gw.ops)
	})

	t.Run("media", func(t *testing.T) {
		gw := &stubFullGateway{stubGateway: stubGateway{name: "twilio"}}
		_, err := app.NewManager(gw, discardLogger()).WhatsAppTo("22890123456").Media("https://cdn/x.png", "").Send(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{app.OpSendMedia}, gw.ops)
	})

	t.Run("plain text", func(t *testing.T) {
		gw := &stubFullGateway{stubGateway: stubGateway{name: "twilio"}}
		_, err := app.NewManager(gw, discardLogger()).WhatsAppTo("22890123456").Send(ctx, "hello")
		require.NoError(t, err)
		assert.Empty(t, gw.ops)
		assert.Equal(t, "hello", gw.lastSent().Content)
	})

	t.Run("nothing to send", func(t *testing.T) {
		gw := &stubFullGateway{stubGateway: stubGateway{name: "twilio"}}
		_, err := app.NewManager(gw, discardLogger()).WhatsAppTo("22890123456").Send(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("template on a basic gateway", func(t *testing.T) {
		_, err := app.NewManager(&stubGateway{name: "sns"}, discardLogger()).
			WhatsAppTo("22890123456").Template("HX1", nil).Send(ctx, "")
		assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	})
}
