package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrInvalidFetchParams is returned when FetchParams does not carry exactly one token.
var ErrInvalidFetchParams = errors.New("exactly one of delta token or page token must be set")

// APIError is a non-2xx reply from the provider.
type APIError struct {
	StatusCode int
	Payload    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Payload)
}

const defaultTimeout = 30 * time.Second

// Client talks to the provider's mailbox API on behalf of one account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	daysWithin int
}

// NewClient creates a client that authenticates every request with the account's bearer token.
// daysWithin is the lookback window requested when a full sync starts.
func NewClient(ctx context.Context, baseURL, accessToken string, daysWithin int) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(ctx, tokenSource)
	httpClient.Timeout = defaultTimeout

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		daysWithin: daysWithin,
	}
}

// StartSync asks the provider to prepare a full sync. Callers must poll until Ready.
func (c *Client) StartSync(ctx context.Context) (*SyncStartResponse, error) {
	query := url.Values{}
	query.Set("daysWithin", strconv.Itoa(c.daysWithin))
	query.Set("bodyType", "html")

	var result SyncStartResponse
	if err := c.do(ctx, http.MethodPost, "/v1/email/sync", query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to start sync: %w", err)
	}

	return &result, nil
}

// FetchUpdated returns one page of changes. Records failing validation are dropped
// and counted in Dropped.
func (c *Client) FetchUpdated(ctx context.Context, params FetchParams) (*SyncUpdatedResponse, error) {
	if (params.DeltaToken == "") == (params.PageToken == "") {
		return nil, ErrInvalidFetchParams
	}

	query := url.Values{}
	if params.DeltaToken != "" {
		query.Set("deltaToken", params.DeltaToken)
	} else {
		query.Set("pageToken", params.PageToken)
	}

	var result SyncUpdatedResponse
	if err := c.do(ctx, http.MethodGet, "/v1/email/sync/updated", query, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch updated messages: %w", err)
	}

	result.Records, result.Dropped = filterValidRecords(result.Records)
	return &result, nil
}

// GetAccount returns the identity of the mailbox behind the token.
func (c *Client) GetAccount(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.do(ctx, http.MethodGet, "/v1/account", nil, nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := ValidateStruct(&info); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &info, nil
}

// SendEmail hands a message to the provider. Delivery is not tracked.
func (c *Client) SendEmail(ctx context.Context, email OutgoingEmail) (*SendResult, error) {
	if err := ValidateStruct(&email); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("bodyType", "html")

	var result SendResult
	if err := c.do(ctx, http.MethodPost, "/v1/email/messages", query, email, &result); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{StatusCode: resp.StatusCode, Payload: string(payload)}
		log.WithFields(log.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
			"error":  apiErr.Payload,
		}).Error("Provider request failed")
		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
