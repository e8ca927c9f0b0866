package v1

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/fundraising/pledge-service/pkg/types/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookBody() fiber.Map {
	return fiber.Map{
		"pledgeId": uuid.NewString(),
		"status":   "SUCCESS",
		"eventId":  "evt_1",
	}
}

func TestHandlePaymentWebhook(t *testing.T) {
	webhooks := &fakeWebhooks{}
	app := newTestApp(&fakePledges{}, webhooks)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/pledges/payment_webhook", webhookBody()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, webhooks.received, 1)
	assert.Equal(t, "evt_1", webhooks.received[0].EventID)
}

func TestHandlePaymentWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fmt.Errorf("uc: %w", errs.ErrValidation), http.StatusBadRequest},
		{"unknown pledge", fmt.Errorf("uc: %w", errs.ErrRecordNotFound), http.StatusNotFound},
		{"terminal pledge", fmt.Errorf("uc: %w", errs.ErrPledgeState), http.StatusConflict},
		{"storage failure", fmt.Errorf("uc: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakePledges{}, &fakeWebhooks{err: tt.err})

			resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/pledges/payment_webhook", webhookBody()))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHandlePaymentWebhookInvalidBody(t *testing.T) {
	app := newTestApp(&fakePledges{}, &fakeWebhooks{})

	resp, err := app.Test(jsonRequest(http.MethodPost, "/v1/pledges/payment_webhook", "not an object"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
