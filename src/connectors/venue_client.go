// REST client for an external swap-execution venue.
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"strategyvault/src/ledger"
	"strategyvault/src/model"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// APIResponse wraps every venue reply.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type swapRequest struct {
	AssetIn        string `json:"assetIn"`
	AssetOut       string `json:"assetOut"`
	AmountIn       string `json:"amountIn"`
	MinAmountOut   string `json:"minAmountOut"`
	RoutingPayload string `json:"routingPayload"`
}

type swapReply struct {
	AmountOut string `json:"amountOut"`
	GasUsed   string `json:"gasUsed"`
}

// VenueClient talks to a remote swap venue over REST. It implements
// SwapVenue; custody sits with the venue, so on success the client
// mirrors the fill into the vault ledger and the settlement engine's
// balance-delta measurement sees the reported output. That mirror trusts
// the venue's reply, unlike the stub where the rate is computed locally.
type VenueClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
	vault     ledger.AssetLedger
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewVenueClient(apiKey, apiSecret, baseURL string) *VenueClient {
	retryCount := defaultRetryAttempts - 1

	config := GetConfig()
	if baseURL == "" {
		baseURL = config.VenueBaseURL
		logger.Warnf("No venue base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.VenueTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &VenueClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

// WithLedger attaches the vault ledger fills are mirrored into. A client
// without one reports receipts but moves no balances.
func (c *VenueClient) WithLedger(l ledger.AssetLedger) *VenueClient {
	c.vault = l
	return c
}

func signRequest(path, body string, expiry int64, secret string) string {
	base := path + fmt.Sprintf("%d", expiry) + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *VenueClient) doRequest(ctx context.Context, method, path string, body []byte) (*APIResponse, error) {
	expiry := time.Now().Add(1 * time.Minute).Unix()

	sig := signRequest(path, string(body), expiry, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("x-venue-access-token", c.apiKey).
		SetHeader("x-venue-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-venue-request-signature", sig)

	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("malformed venue response: %w", err)
	}

	return &apiResp, nil
}

// ExecuteSwap submits the swap, mirrors the fill into the vault ledger,
// and returns the venue-reported receipt.
func (c *VenueClient) ExecuteSwap(
	ctx context.Context,
	assetIn, assetOut string,
	amountIn decimal.Decimal,
	routingPayload string,
	minAmountOut decimal.Decimal,
) (*SwapReceipt, error) {

	body, err := json.Marshal(swapRequest{
		AssetIn:        assetIn,
		AssetOut:       assetOut,
		AmountIn:       amountIn.String(),
		MinAmountOut:   minAmountOut.String(),
		RoutingPayload: routingPayload,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, resty.MethodPost, "/api/v1/swap", body)
	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"asset_in":  assetIn,
			"asset_out": assetOut,
			"amount_in": amountIn.String(),
		}).Error("Venue swap request failed")

		return nil, model.ErrSwapFailed
	}

	if resp.Code != 0 {
		logger.WithFields(map[string]interface{}{
			"code": resp.Code,
			"msg":  GetErrorMsg(resp.Code),
		}).Error("Venue rejected swap")

		if resp.Code == codeSlippage {
			return nil, model.ErrSlippageExceeded
		}
		return nil, model.ErrSwapFailed
	}

	var reply swapReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return nil, fmt.Errorf("malformed swap reply: %w", err)
	}

	amountOut, err := decimal.NewFromString(reply.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("malformed swap amount %q: %w", reply.AmountOut, err)
	}

	gasUsed := decimal.Zero
	if reply.GasUsed != "" {
		gasUsed, err = decimal.NewFromString(reply.GasUsed)
		if err != nil {
			return nil, fmt.Errorf("malformed gas figure %q: %w", reply.GasUsed, err)
		}
	}

	if c.vault != nil {
		if err := c.vault.Debit(ledger.VaultAccount, assetIn, amountIn); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrSwapFailed, err)
		}
		if err := c.vault.Credit(ledger.VaultAccount, assetOut, amountOut); err != nil {
			// Undo the debit so a failed mirror moves nothing.
			_ = c.vault.Credit(ledger.VaultAccount, assetIn, amountIn)
			return nil, fmt.Errorf("%w: %v", model.ErrSwapFailed, err)
		}
	}

	return &SwapReceipt{AmountOut: amountOut, GasUsed: gasUsed}, nil
}
