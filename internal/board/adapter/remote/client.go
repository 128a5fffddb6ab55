// Package remote is the board's view of an order store reached over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orderboard/internal/lifecycle"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

const maxBodySize = 4 << 20

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	mylog   logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.mylog = l }
}

// New builds a client for the store at baseURL. Every request carries token
// as a bearer credential; the store derives the tenant from it.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("store url %q: %w", baseURL, apperr.ErrFieldIsEmpty)
	}
	c := &Client{
		baseURL: u.String(),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		mylog:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListOrders fetches one page. tenantID is informational: the server scopes
// the query by the token, and records from another tenant are dropped here.
func (c *Client) ListOrders(ctx context.Context, tenantID string, f models.ListFilters) ([]models.Order, error) {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		parts := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if f.CustomerID != "" {
		q.Set("customer_id", f.CustomerID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	endpoint := c.baseURL + "/v1/orders"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}

	orders, skipped, err := decodeOrders(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrTransientFetch, err)
	}
	if skipped > 0 {
		c.mylog.Action("orders_skipped").Warn("dropped orders the board cannot read", "count", skipped)
	}

	out := orders[:0]
	for _, o := range orders {
		if o.TenantID != "" && tenantID != "" && o.TenantID != tenantID {
			continue
		}
		if o.TenantID == "" {
			o.TenantID = tenantID
		}
		out = append(out, o)
	}
	return out, nil
}

type statusBody struct {
	Status models.Status `json:"status"`
	Note   string        `json:"note,omitempty"`
}

func (c *Client) UpdateOrderStatus(ctx context.Context, change models.StatusChange) (models.Order, error) {
	payload, err := json.Marshal(statusBody{Status: change.Target, Note: change.Note})
	if err != nil {
		return models.Order{}, err
	}
	endpoint := c.baseURL + "/v1/orders/" + url.PathEscape(change.OrderID) + "/status"

	body, err := c.do(ctx, http.MethodPatch, endpoint, payload, change.Target)
	if err != nil {
		return models.Order{}, err
	}
	o, err := decodeSingle(body)
	if err != nil {
		return models.Order{}, fmt.Errorf("decode updated order: %w", err)
	}
	return o, nil
}

// do sends the request and maps failures onto the store's error contract.
// target is only used to build an InvalidTransitionError on 409/422.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, target models.Status) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", apperr.ErrTransientFetch, err)
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return body, nil
	case code == http.StatusUnauthorized:
		return nil, apperr.ErrUnauthorized
	case code == http.StatusForbidden:
		return nil, apperr.ErrForbidden
	case code == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case code == http.StatusConflict && errorCode(body) == CodeStatusConflict:
		return nil, apperr.ErrStatusConflict
	case code == http.StatusConflict || code == http.StatusUnprocessableEntity:
		return nil, &lifecycle.InvalidTransitionError{From: currentStatus(body), To: target}
	default:
		return nil, fmt.Errorf("%w: store answered %d", apperr.ErrTransientFetch, code)
	}
}
