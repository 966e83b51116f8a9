package ptc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

const sampleBody = `[
  {"DISPLAY_NAME":"Acme Energy","COMMODITY":"ELECTRIC","SERVICE_CLASS":"RESIDENTIAL",
   "SERVICE_ZONE":"Con Edison","OFFER_TYPE":"Fixed","RATE":"0.1","PERCENTAGE_GREEN":100,
   "CANCELLATION_FEE":"$100 early termination","VALUE_ADDED":1,"URL":"https://acme.example"},
  {"DISPLAY_NAME":"Budget Power","COMMODITY":"GAS","SERVICE_CLASS":"RESIDENTIAL",
   "SERVICE_ZONE":"Con Edison","OFFER_TYPE":"Variable","RATE":0.8,"PERCENTAGE_GREEN":null,
   "CANCELLATION_FEE":null,"VALUE_ADDED":"No","URL":"0"}
]`

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.Timeout = 2 * time.Second
	cfg.Retries = 0
	return NewClient(cfg)
}

func TestFetch(t *testing.T) {
	var path string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	})

	offers, err := c.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	require.NoError(t, err)
	assert.Equal(t, "/api/Service/GetActiveOffersByZip/10001", path)
	require.Len(t, offers, 2)

	assert.Equal(t, "Acme Energy", offers[0].DisplayName)
	assert.Equal(t, offer.KindText, offers[0].Rate.Kind())
	assert.Equal(t, offer.KindNumber, offers[0].PercentageGreen.Kind())
	assert.Equal(t, "https://acme.example", offers[0].SwitchURL())

	assert.True(t, offers[1].CancellationFee.IsNull())
	assert.Equal(t, "", offers[1].SwitchURL())
}

func TestFetch_InvalidZip(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	_, err := c.Fetch(context.Background(), source.Query{ZipCode: "abc"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuery))
}

func TestFetch_ServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	assert.True(t, errors.Is(err, apperrors.ErrSourceFailed))
}

func TestFetch_NotAnArray(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"bad zip"}`))
	})
	_, err := c.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	assert.True(t, errors.Is(err, apperrors.ErrSourceFailed))
}
