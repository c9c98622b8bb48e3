// Package backend is the HTTP client for the kiosk backend: product
// catalog, card-to-user lookup and order creation. Transport details
// stay in here; the rest of the service only sees typed results.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"dispenser-service/internal/logger"
	"dispenser-service/internal/types"
)

const requestTimeout = 3 * time.Second

// ErrRejected means the backend refused an order after our local
// balance and stock checks had passed. Transient: the user stays
// logged in and may retry.
var ErrRejected = errors.New("order rejected by backend")

type Client struct {
	baseURL    string
	token      string
	kioskID    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(baseURL, token, kioskID string, l *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		kioskID:    kioskID,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     l.WithTag("backend"),
	}
}

type productRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Slot       int    `json:"slot"`
	Stock      int    `json:"stock"`
}

type catalogResponse struct {
	Products []productRecord `json:"products"`
}

type userRecord struct {
	ID           string `json:"id"`
	CardID       string `json:"card_id"`
	DisplayName  string `json:"display_name"`
	BalanceCents int64  `json:"balance_cents"`
}

type orderRequest struct {
	KioskID   string `json:"kiosk_id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

type orderResponse struct {
	BalanceCents int64 `json:"balance_cents"`
	Stock        int   `json:"stock"`
}

// OrderResult carries the backend's authoritative post-order balance
// and stock.
type OrderResult struct {
	NewBalance types.Currency
	NewStock   int
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "dispenser-service/"+c.kioskID)
	return c.httpClient.Do(req)
}

// FetchCatalog retrieves the full product list. The caller replaces its
// catalog wholesale on success and keeps the old one on failure.
func (c *Client) FetchCatalog(ctx context.Context) ([]types.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/catalog", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch returned status %d", resp.StatusCode)
	}

	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	products := make([]types.Product, 0, len(body.Products))
	for _, rec := range body.Products {
		slot := types.SlotID(rec.Slot)
		if slot != types.Slot1 && slot != types.Slot2 {
			c.logger.Warnf("Skipping catalog entry %q with invalid slot %d", rec.Name, rec.Slot)
			continue
		}
		products = append(products, types.Product{
			RemoteID: rec.ID,
			Name:     rec.Name,
			Price:    types.Currency(rec.PriceCents),
			Slot:     slot,
			Stock:    rec.Stock,
		})
	}
	return products, nil
}

// FindUserByCard looks an account up by card UID. A nil user with nil
// error means the card is not registered; an error means we cannot
// currently authenticate at all.
func (c *Client) FindUserByCard(ctx context.Context, cardID string) (*types.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/users/by-card/"+cardID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		return nil, fmt.Errorf("user lookup returned status %d", resp.StatusCode)
	}

	var rec userRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &types.User{
		CardID:      rec.CardID,
		DisplayName: rec.DisplayName,
		Balance:     types.Currency(rec.BalanceCents),
		RemoteID:    rec.ID,
	}, nil
}

// CreateOrder commits a purchase. The backend decrements balance and
// stock atomically at order time; the result carries both so the local
// ledger can mirror them together or not at all.
func (c *Client) CreateOrder(ctx context.Context, userRemoteID, productRemoteID string) (OrderResult, error) {
	payload, err := json.Marshal(orderRequest{
		KioskID:   c.kioskID,
		UserID:    userRemoteID,
		ProductID: productRemoteID,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return OrderResult{}, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.do(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		io.Copy(io.Discard, resp.Body)
		return OrderResult{}, fmt.Errorf("%w (status %d)", ErrRejected, resp.StatusCode)
	default:
		return OrderResult{}, fmt.Errorf("order returned status %d", resp.StatusCode)
	}

	var body orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return OrderResult{}, fmt.Errorf("failed to decode order response: %w", err)
	}

	return OrderResult{
		NewBalance: types.Currency(body.BalanceCents),
		NewStock:   body.Stock,
	}, nil
}
