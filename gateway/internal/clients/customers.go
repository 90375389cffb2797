package clients

import (
	"context"
	"errors"
	"time"
)

// CustomerRequest identifies a customer by their id on an external channel.
type CustomerRequest struct {
	ExternalID   string `json:"external_id"`
	ExternalType string `json:"external_type"`
	Name         string `json:"name"`
}

type Customer struct {
	ID         string
	ExternalID string
}

// CustomerClient talks to the customer service.
type CustomerClient struct {
	baseClient
}

func NewCustomerClient(baseURL string, timeout time.Duration) *CustomerClient {
	return &CustomerClient{newBaseClient("customer service", baseURL, timeout)}
}

// FindOrCreate posts to /api/customers. The customer service returns the
// existing customer when (external_id, external_type) is already known.
func (c *CustomerClient) FindOrCreate(ctx context.Context, req CustomerRequest) (*Customer, error) {
	var resp idResponse
	if err := c.postJSON(ctx, "/api/customers", req, &resp); err != nil {
		return nil, err
	}
	if resp.id() == "" {
		return nil, errors.New("customer service response has no id")
	}
	return &Customer{ID: resp.id(), ExternalID: req.ExternalID}, nil
}
