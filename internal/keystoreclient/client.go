// Package keystoreclient is the outbound HTTP client for the envelope
// key store: the service that extracts a submitter's Crypt4GH file
// secret from an uploaded header, re-encrypts it under a secret ID of
// our own, and later hands back a personalized envelope for a
// recipient's public key.
//
// FIS calls PostSecret to deposit a file secret; DCS calls
// GetEnvelope on every download request and DeleteSecret when a file
// is removed from the archive. Every call carries bounded
// exponential backoff, since the key store is a required dependency
// on the critical path of both uploads and downloads.
package keystoreclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/dittofs/internal/apierror"
)

// Config configures the key store client.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

// DefaultConfig returns sensible client defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    10 * time.Second,
		MaxRetries: 5,
	}
}

// EnvelopeContent is what PostEnvelope returns: the submitter's original
// secret (so the caller can verify it against what was encrypted), our
// own re-encryption secret, the ID under which we've stored it, and the
// byte offset into the uploaded file where encrypted content begins.
type EnvelopeContent struct {
	SubmitterSecret []byte
	NewSecret       []byte
	SecretID        string
	Offset          int64
}

type postResponse struct {
	SubmitterSecret string `json:"submitter_secret"`
	NewSecret       string `json:"new_secret"`
	SecretID        string `json:"secret_id"`
	Offset          int64  `json:"offset"`
}

type postRequest struct {
	PublicKey string `json:"public_key"`
	FilePart  string `json:"file_part"`
}

type getResponse struct {
	Content string `json:"content"`
}

// Client talks to the key store's /secrets endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// PostEnvelope submits the first part of an uploaded file (which carries
// the Crypt4GH header) plus the submitter's public key, and gets back a
// freshly minted secret ID under which the file's re-encryption key is
// now stored.
func (c *Client) PostEnvelope(ctx context.Context, submitterPublicKey, filePart []byte) (*EnvelopeContent, error) {
	body := postRequest{
		PublicKey: base64.StdEncoding.EncodeToString(submitterPublicKey),
		FilePart:  base64.StdEncoding.EncodeToString(filePart),
	}

	var decoded postResponse
	if err := c.doWithRetry(ctx, "deposit_envelope", func(ctx context.Context) error {
		return c.postJSON(ctx, "/secrets", body, &decoded)
	}); err != nil {
		return nil, err
	}

	submitterSecret, err := base64.StdEncoding.DecodeString(decoded.SubmitterSecret)
	if err != nil {
		return nil, apierror.NewClientError("malformedEnvelopeResponse", http.StatusBadGateway,
			"key store returned a submitter secret that is not valid base64", nil)
	}
	newSecret, err := base64.StdEncoding.DecodeString(decoded.NewSecret)
	if err != nil {
		return nil, apierror.NewClientError("malformedEnvelopeResponse", http.StatusBadGateway,
			"key store returned a re-encryption secret that is not valid base64", nil)
	}

	return &EnvelopeContent{
		SubmitterSecret: submitterSecret,
		NewSecret:       newSecret,
		SecretID:        decoded.SecretID,
		Offset:          decoded.Offset,
	}, nil
}

// PostSecret deposits an already-decrypted file secret and returns the
// opaque secret id it is now stored under. Distinct from PostEnvelope:
// this is the interrogation-time deposit of a raw wrapped key, not the
// extraction of one from an uploaded Crypt4GH header.
func (c *Client) PostSecret(ctx context.Context, secret []byte) (string, error) {
	var secretID string
	err := c.doWithRetry(ctx, "deposit_secret", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/secrets", bytes.NewReader(secret))
		if err != nil {
			return fmt.Errorf("keystoreclient: building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &transportError{op: "POST /secrets", err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("keystoreclient: reading response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return &statusError{status: resp.StatusCode, body: string(respBody)}
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return apierror.NewClientError("keyStoreRejectedRequest", resp.StatusCode, string(respBody), nil)
		}
		return json.Unmarshal(respBody, &secretID)
	})
	return secretID, err
}

// GetEnvelope fetches a Crypt4GH header envelope for secretID,
// personalized for recipientPublicKey. The returned bytes are the raw
// envelope, ready to be prepended to the object's encrypted payload.
func (c *Client) GetEnvelope(ctx context.Context, secretID string, recipientPublicKey []byte) ([]byte, error) {
	path := fmt.Sprintf("/secrets/%s/envelopes/%s",
		url.PathEscape(secretID),
		base64.URLEncoding.EncodeToString(recipientPublicKey))

	var decoded getResponse
	if err := c.doWithRetry(ctx, "fetch_envelope", func(ctx context.Context) error {
		return c.getJSON(ctx, path, &decoded)
	}); err != nil {
		return nil, err
	}

	envelope, err := base64.StdEncoding.DecodeString(decoded.Content)
	if err != nil {
		return nil, apierror.NewClientError("malformedEnvelopeResponse", http.StatusBadGateway,
			"key store returned an envelope that is not valid base64", nil)
	}
	return envelope, nil
}

// DeleteSecret removes a previously stored re-encryption secret. Called
// when the file it protects is deleted from the archive. A 404 from the
// key store is not an error here: the secret being already gone is the
// desired end state.
func (c *Client) DeleteSecret(ctx context.Context, secretID string) error {
	path := fmt.Sprintf("/secrets/%s", url.PathEscape(secretID))
	return c.doWithRetry(ctx, "delete_secret", func(ctx context.Context) error {
		err := c.delete(ctx, path)
		if isNotFound(err) {
			return nil
		}
		return err
	})
}

func (c *Client) doWithRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, policy)
	if err != nil {
		if lastErr != nil && isRetryable(lastErr) {
			return apierror.NewTransientUpstreamError("keyStoreUnavailable", op, http.StatusBadGateway, lastErr)
		}
		return lastErr
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("keystoreclient: marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), result)
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("keystoreclient: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{op: method + " " + path, err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("keystoreclient: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return &statusError{status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return &statusError{status: resp.StatusCode, body: string(respBody)}
	}
	if resp.StatusCode >= 400 {
		return apierror.NewClientError("keyStoreRejectedRequest", resp.StatusCode, string(respBody), nil)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("keystoreclient: decoding response: %w", err)
		}
	}
	return nil
}
