package keystoreclient

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig(server.URL)
	cfg.MaxRetries = 2
	return New(cfg)
}

func TestPostEnvelopeDecodesBase64Fields(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/secrets", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"submitter_secret": "` + base64.StdEncoding.EncodeToString([]byte("submitter")) + `",
			"new_secret": "` + base64.StdEncoding.EncodeToString([]byte("reencrypt")) + `",
			"secret_id": "secret-001",
			"offset": 124
		}`))
	})

	envelope, err := client.PostEnvelope(context.Background(), []byte("pubkey"), []byte("header-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("submitter"), envelope.SubmitterSecret)
	assert.Equal(t, []byte("reencrypt"), envelope.NewSecret)
	assert.Equal(t, "secret-001", envelope.SecretID)
	assert.Equal(t, int64(124), envelope.Offset)
}

func TestGetEnvelopeURLEncodesRecipientKey(t *testing.T) {
	recipientKey := []byte{0xff, 0xee, 0x01}
	wantSegment := base64.URLEncoding.EncodeToString(recipientKey)

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/secrets/secret-001/envelopes/"+wantSegment, r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content": "` + base64.StdEncoding.EncodeToString([]byte("envelope-bytes")) + `"}`))
	})

	content, err := client.GetEnvelope(context.Background(), "secret-001", recipientKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("envelope-bytes"), content)
}

func TestDeleteSecretTreatsNotFoundAsSuccess(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.DeleteSecret(context.Background(), "already-gone")
	require.NoError(t, err)
}

func TestPostEnvelopeSurfacesClientErrorWithoutRetry(t *testing.T) {
	calls := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("malformed header"))
	})

	_, err := client.PostEnvelope(context.Background(), []byte("pubkey"), []byte("header-bytes"))
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx responses are not retried")
}

func TestGetEnvelopeRetriesOnServerError(t *testing.T) {
	calls := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content": "` + base64.StdEncoding.EncodeToString([]byte("envelope")) + `"}`))
	})

	content, err := client.GetEnvelope(context.Background(), "secret-001", []byte("recipient"))
	require.NoError(t, err)
	assert.Equal(t, []byte("envelope"), content)
	assert.GreaterOrEqual(t, calls, 2)
}
