package exchange

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/xerrors"
)

// restOrderConn is the request-reply Order Connection variant: every
// send/cancel/query is an authenticated HTTPS call with a per-request JWT.
// There is no push channel, so query_order must be polled to advance order
// state — Order Manager's GetOrder relies on this.
type restOrderConn struct {
	cfg  ORDConfig
	rest *restClient
}

// NewRESTOrderConn constructs the REST order-connection variant.
func NewRESTOrderConn(cfg ORDConfig, signer *TokenSigner) *restOrderConn {
	return &restOrderConn{cfg: cfg, rest: newRESTClient(cfg.OrdersHTTP, signer)}
}

// Connect is a no-op beyond marking the variant ready — REST has no
// persistent session to open.
func (c *restOrderConn) Connect(ctx context.Context) error { return nil }
func (c *restOrderConn) Disconnect() error                 { return nil }
func (c *restOrderConn) IsConnected() bool                 { return true }

type orderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID string `json:"order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	} `json:"error_response"`
}

func (c *restOrderConn) SendOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (string, error) {
	const path = "api/v3/brokerage/orders"
	req, err := c.rest.authed(ctx, "orders:post", "POST", path)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"client_order_id": uuid.Must(uuid.NewV7()).String(),
		"product_id":      cp.String(),
		"side":            string(side),
		"order_configuration": map[string]any{
			"limit_limit_gtc": map[string]any{
				"base_size":   qty.String(),
				"limit_price": price.String(),
				"post_only":   false,
			},
		},
	}

	var out orderResponse
	resp, err := req.SetBody(body).SetResult(&out).Post("/" + path)
	if err != nil {
		return "", xerrors.New(xerrors.Transport, "order_rest.SendOrder", err)
	}
	if resp.IsError() || !out.Success {
		return "", xerrors.New(xerrors.Business, "order_rest.SendOrder", fmt.Errorf("%s: %s", out.ErrorResponse.Error, out.ErrorResponse.Message))
	}
	return out.SuccessResponse.OrderID, nil
}

func (c *restOrderConn) CancelOrder(ctx context.Context, orderID string) error {
	const path = "api/v3/brokerage/orders/batch_cancel"
	req, err := c.rest.authed(ctx, "orders:batch_cancel", "POST", path)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(map[string]any{"order_ids": []string{orderID}}).Post("/" + path)
	if err != nil {
		return xerrors.New(xerrors.Transport, "order_rest.CancelOrder", err)
	}
	if resp.IsError() {
		return xerrors.New(xerrors.Business, "order_rest.CancelOrder", fmt.Errorf("status %s", resp.Status()))
	}
	return nil
}

type queryResponse struct {
	Order struct {
		OrderID           string `json:"order_id"`
		ProductID         string `json:"product_id"`
		Side              string `json:"side"`
		Status            string `json:"status"`
		BaseSize          string `json:"base_size"`
		LimitPrice        string `json:"limit_price"`
		CumulativeQuantity string `json:"cumulative_quantity"`
	} `json:"order"`
}

func (c *restOrderConn) QueryOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	path := fmt.Sprintf("api/v3/brokerage/orders/historical/%s", orderID)
	req, err := c.rest.authed(ctx, "orders:get", "GET", path)
	if err != nil {
		return nil, err
	}

	var out queryResponse
	resp, err := req.SetResult(&out).Get("/" + path)
	if err != nil {
		return nil, xerrors.New(xerrors.Transport, "order_rest.QueryOrder", err)
	}
	if resp.IsError() {
		return nil, xerrors.New(xerrors.Business, "order_rest.QueryOrder", fmt.Errorf("status %s", resp.Status()))
	}

	status, known := domain.ParseExchangeStatus(out.Order.Status)
	if !known {
		status = domain.StatusNew
	}
	cp, err := currency.ParsePair(out.Order.ProductID)
	if err != nil {
		return nil, xerrors.New(xerrors.Protocol, "order_rest.QueryOrder", err)
	}
	price, _ := decimal.NewFromString(out.Order.LimitPrice)
	qty, _ := decimal.NewFromString(out.Order.BaseSize)
	filled, _ := decimal.NewFromString(out.Order.CumulativeQuantity)

	return &domain.Order{
		OrderID:    out.Order.OrderID,
		Instrument: cp,
		Side:       domain.Side(out.Order.Side),
		OrigQty:    qty,
		LimitPx:    price,
		Status:     status,
		FilledQty:  filled,
	}, nil
}

func (c *restOrderConn) GetAccountBalances(ctx context.Context) (domain.Balance, error) {
	return c.rest.GetAccountBalances(ctx)
}
