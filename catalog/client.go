/*
client.go - Remote user directory and product catalog

PURPOSE:
  Resolves owners and products from an external HTTP service instead of
  the local users/products tables. Enabled by CATALOG_URL.

ENDPOINTS:
  GET {base}/users/{id}     -> {"id": 1, "name": "Aysel"}
  GET {base}/products/{id}  -> {"id": 10, "name": "...", "code": "...",
                                "unit": "kg", "unitPrice": "5.00"}

ERRORS:
  404           -> ledger.ErrOwnerNotFound / ledger.ErrProductNotFound
  anything else -> ledger.TransientError (retryable)
*/
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/azenco/stock-ledger/ledger"
)

// Client implements ledger.UserDirectory and ledger.ProductCatalog over HTTP.
type Client struct {
	http *resty.Client
}

type userDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type productDTO struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// New returns a client for baseURL. Requests are retried twice on network
// errors and 5xx responses.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: c}
}

func (c *Client) GetOwner(ctx context.Context, id ledger.OwnerID) (ledger.Identity, error) {
	var out userDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(int64(id), 10)).
		SetResult(&out).
		Get("/users/{id}")
	if err := classify("get owner", resp, err, ledger.ErrOwnerNotFound); err != nil {
		return ledger.Identity{}, err
	}
	return ledger.Identity{ID: ledger.OwnerID(out.ID), Name: out.Name}, nil
}

func (c *Client) GetProduct(ctx context.Context, id ledger.ProductID) (ledger.ProductSnapshot, error) {
	var out productDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(int64(id), 10)).
		SetResult(&out).
		Get("/products/{id}")
	if err := classify("get product", resp, err, ledger.ErrProductNotFound); err != nil {
		return ledger.ProductSnapshot{}, err
	}
	return ledger.ProductSnapshot{
		ProductID: ledger.ProductID(out.ID),
		Name:      out.Name,
		Code:      out.Code,
		Unit:      out.Unit,
		UnitPrice: out.UnitPrice,
	}, nil
}

func classify(op string, resp *resty.Response, err error, notFound error) error {
	if err != nil {
		return ledger.Transient(op, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return notFound
	case resp.IsError():
		return ledger.Transient(op, fmt.Errorf("catalog returned %s", resp.Status()))
	}
	return nil
}
