// Package fordefi is a client for the subset of the Fordefi custody API this
// tool needs: creating Solana transactions for an API signer vault and
// polling them to a terminal state. Every request is signed with a locally
// held ECDSA P-256 credential; the ledger keypair is never sent here.
package fordefi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.fordefi.com"

type Client struct {
	baseURL     string
	accessToken string
	signingKey  *ecdsa.PrivateKey
	http        *http.Client

	// now is swappable for request-signature tests.
	now func() time.Time
}

func NewClient(baseURL, accessToken string, signingKey *ecdsa.PrivateKey, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: strings.TrimSpace(accessToken),
		signingKey:  signingKey,
		http:        httpClient,
		now:         time.Now,
	}
}

// LoadAPISignerKey reads a PEM-encoded ECDSA private key (SEC1 or PKCS#8),
// the credential registered with Fordefi as the API signer key.
func LoadAPISignerKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in %s", ErrInvalidSigningKey, path)
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA key", ErrInvalidSigningKey)
	}
	return key, nil
}

// signRequest produces the X-Signature value over "path|timestampMs|body".
func (c *Client) signRequest(path string, timestampMs int64, body []byte) (string, error) {
	if c.signingKey == nil {
		return "", ErrInvalidSigningKey
	}
	payload := path + "|" + strconv.FormatInt(timestampMs, 10) + "|" + string(body)
	digest := sha256.Sum256([]byte(payload))
	sig, err := ecdsa.SignASN1(rand.Reader, c.signingKey, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return errors.New("nil fordefi client")
	}
	if c.accessToken == "" {
		return fmt.Errorf("%w: missing access token", ErrAuth)
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")

		ts := c.now().UnixMilli()
		sig, err := c.signRequest(path, ts, bodyBytes)
		if err != nil {
			return err
		}
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-Signature", sig)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: http %d: %s", ErrAuth, resp.StatusCode, apiErrorMessage(raw))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
	}
	return nil
}
