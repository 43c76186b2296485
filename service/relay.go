package service

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

	"github.com/kevinaaaquil/sharemybook/models"
)

// RelayError is returned when the relay answers with a non-success status or
// with a body that cannot be decoded.
type RelayError struct {
	Code int
	Body string
}

func (e *RelayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("relay returned %d", e.Code)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a relay 404, i.e. the share is unknown,
// expired or already consumed.
func IsNotFound(err error) bool {
	var re *RelayError
	return errors.As(err, &re) && re.Code == http.StatusNotFound
}

// maxErrorBody bounds how much of an error response is kept in RelayError.Body.
const maxErrorBody = 512

// RelayClient talks to the share relay. It performs exactly one HTTP call per
// method; retry policy belongs to the caller.
type RelayClient struct {
	baseURL string
	client  *http.Client
}

func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// InitTransaction registers a new share and returns the relay-issued shareId.
func (c *RelayClient) InitTransaction(ctx context.Context, action models.Action, book models.TransactionBook, owner models.TransactionUser) (string, error) {
	req := models.InitRequest{Action: action, Book: book, Owner: owner}
	var resp models.InitResponse
	status, err := c.do(ctx, http.MethodPost, "/init", req, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ShareID) == "" {
		return "", &RelayError{Code: status, Body: "response has no shareId"}
	}
	return resp.ShareID, nil
}

// AcceptTransaction attaches borrower to the share and returns the updated record.
func (c *RelayClient) AcceptTransaction(ctx context.Context, shareID string, borrower models.TransactionUser) (*models.Transaction, error) {
	var tx models.Transaction
	if _, err := c.do(ctx, http.MethodPost, "/accept/"+url.PathEscape(shareID), models.AcceptRequest{Borrower: borrower}, &tx); err != nil {
		return nil, err
	}
	tx.ShareID = shareID
	return &tx, nil
}

// TransactionResult fetches the current record. A 404 is reported as a
// RelayError for which IsNotFound is true.
func (c *RelayClient) TransactionResult(ctx context.Context, shareID string) (*models.Transaction, error) {
	var tx models.Transaction
	if _, err := c.do(ctx, http.MethodGet, "/result/"+url.PathEscape(shareID), nil, &tx); err != nil {
		return nil, err
	}
	tx.ShareID = shareID
	return &tx, nil
}

func (c *RelayClient) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("relay %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &RelayError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &RelayError{Code: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	return resp.StatusCode, nil
}
