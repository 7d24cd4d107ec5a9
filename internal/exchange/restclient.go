package exchange

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/xerrors"
	"github.com/gridbot/core/pkg/ratelimit"
)

// restClient wraps resty with the per-request JWT signing §4.C/§6 require
// for every REST call, regardless of which order-connection variant is
// active — Coinbase Advanced Trade's accounts endpoint has no WS
// equivalent, so both variants share this for GetAccountBalances. Every
// call is also throttled per endpoint so a burst of hedge placements can't
// trip the exchange's REST rate limits.
type restClient struct {
	http    *resty.Client
	signer  *TokenSigner
	host    string
	limiter *ratelimit.Manager
}

func newRESTClient(host string, signer *TokenSigner) *restClient {
	return &restClient{
		http:    resty.New().SetBaseURL("https://" + host),
		signer:  signer,
		host:    host,
		limiter: ratelimit.NewManager(),
	}
}

// authed waits for rate-limit budget on endpoint, signs a fresh JWT scoped
// to method+path, and returns a request ready for its body/result to be set.
func (c *restClient) authed(ctx context.Context, endpoint, method, path string) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, xerrors.New(xerrors.Transport, "restclient.authed", err)
	}
	token, err := c.signer.SignRequest(method, c.host, path)
	if err != nil {
		return nil, xerrors.New(xerrors.Auth, "restclient.authed", err)
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

// accountsResponse mirrors the subset of Coinbase Advanced Trade's
// /api/v3/brokerage/accounts response the balance fetch needs.
type accountsResponse struct {
	Accounts []struct {
		Currency         string `json:"currency"`
		AvailableBalance struct {
			Value string `json:"value"`
		} `json:"available_balance"`
	} `json:"accounts"`
}

// GetAccountBalances extracts available balance per currency from the
// accounts endpoint response.
func (c *restClient) GetAccountBalances(ctx context.Context) (domain.Balance, error) {
	const path = "api/v3/brokerage/accounts"
	req, err := c.authed(ctx, "accounts:get", "GET", path)
	if err != nil {
		return nil, err
	}

	var body accountsResponse
	resp, err := req.SetResult(&body).Get("/" + path)
	if err != nil {
		return nil, xerrors.New(xerrors.Transport, "restclient.GetAccountBalances", err)
	}
	if resp.IsError() {
		return nil, xerrors.New(xerrors.Auth, "restclient.GetAccountBalances", fmt.Errorf("status %s", resp.Status()))
	}

	bal := make(domain.Balance, len(body.Accounts))
	for _, a := range body.Accounts {
		v, err := decimal.NewFromString(a.AvailableBalance.Value)
		if err != nil {
			continue
		}
		bal[currency.Currency(a.Currency)] = v
	}
	return bal, nil
}
