// Package phonepe talks to the PhonePe PG v1 API: pay-page initiation,
// status checks and server-to-server callbacks.
package phonepe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/checksum"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type Config struct {
	MerchantID string
	SaltKey    string
	SaltIndex  int
	BaseURL    string
	// BackendURL is where the provider sends the browser and the callback.
	BackendURL string
	Timeout    time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("phonepe"),
	}
}

func (c *Client) MerchantID() string { return c.cfg.MerchantID }

// BuildPayRequest fills merchant identity and return URLs for an intent.
func (c *Client) BuildPayRequest(in Intent) PayRequest {
	return PayRequest{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: in.TransactionID,
		MerchantUserID:        in.UserID,
		Amount:                in.AmountMinor,
		RedirectURL:           c.cfg.BackendURL + "/orders/status?id=" + url.QueryEscape(in.TransactionID),
		RedirectMode:          "POST",
		CallbackURL:           c.cfg.BackendURL + "/orders/phonepe-callback",
		MobileNumber:          in.Mobile,
		PaymentInstrument:     PaymentInstrument{Type: "PAY_PAGE"},
	}
}

// Initiate opens a pay-page session.
func (c *Client) Initiate(ctx context.Context, in Intent) (Result, error) {
	payload, err := json.Marshal(c.BuildPayRequest(in))
	if err != nil {
		return Result{}, &GatewayError{Op: "pay", Err: err}
	}
	encoded := checksum.Encode(payload)
	body, _ := json.Marshal(map[string]string{"request": encoded})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+PayPath, bytes.NewReader(body))
	if err != nil {
		return Result{}, &GatewayError{Op: "pay", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-VERIFY", checksum.SignEncoded(encoded, c.cfg.SaltKey, PayPath, c.cfg.SaltIndex))

	resp, raw, err := c.do(req, "pay")
	if err != nil {
		return Result{}, err
	}
	res := Result{Success: resp.Success, Code: resp.Code, Message: resp.Message, Raw: raw}
	if !resp.Success || len(resp.Data) == 0 {
		return res, nil
	}
	var d payData
	if err := json.Unmarshal(resp.Data, &d); err != nil {
		return Result{}, &GatewayError{Op: "pay", Err: fmt.Errorf("decode data: %w", err)}
	}
	res.RedirectURL = d.InstrumentResponse.RedirectInfo.URL
	res.ProviderTransactionID = d.TransactionID
	res.MerchantTransactionID = d.MerchantTransactionID
	return res, nil
}

// QueryStatus asks the provider for the outcome of a transaction.
func (c *Client) QueryStatus(ctx context.Context, transactionID string) (Result, error) {
	path := fmt.Sprintf("%s/%s/%s", StatusPath, c.cfg.MerchantID, url.PathEscape(transactionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return Result{}, &GatewayError{Op: "status", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-VERIFY", checksum.Sign(nil, c.cfg.SaltKey, path, c.cfg.SaltIndex))
	req.Header.Set("X-MERCHANT-ID", c.cfg.MerchantID)

	resp, raw, err := c.do(req, "status")
	if err != nil {
		return Result{}, err
	}
	return statusResult(resp, raw, "status")
}

// DecodeCallback verifies and decodes a server-to-server callback body of
// the form {"response": "<base64>"} signed as sha256(base64 + salt)###index.
func (c *Client) DecodeCallback(body []byte, xVerify string) (Result, error) {
	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Response == "" {
		return Result{}, fmt.Errorf("phonepe callback: malformed body")
	}
	if !checksum.Verify(xVerify, envelope.Response, c.cfg.SaltKey, "", c.cfg.SaltIndex) {
		return Result{}, ErrBadSignature
	}
	raw, err := base64.StdEncoding.DecodeString(envelope.Response)
	if err != nil {
		return Result{}, fmt.Errorf("phonepe callback: decode response: %w", err)
	}
	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, fmt.Errorf("phonepe callback: decode json: %w", err)
	}
	return statusResult(resp, raw, "callback")
}

func statusResult(resp apiResponse, raw []byte, op string) (Result, error) {
	res := Result{Success: resp.Success, Code: resp.Code, Message: resp.Message, Raw: raw}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return res, nil
	}
	var d statusData
	if err := json.Unmarshal(resp.Data, &d); err != nil {
		return Result{}, &GatewayError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	res.ProviderTransactionID = d.TransactionID
	res.MerchantTransactionID = d.MerchantTransactionID
	res.Amount = d.Amount
	res.State = d.State
	return res, nil
}

func (c *Client) do(req *http.Request, op string) (apiResponse, []byte, error) {
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("provider call failed", zap.String("op", op), zap.Duration("took", time.Since(start)), zap.Error(err))
		return apiResponse{}, nil, &GatewayError{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return apiResponse{}, nil, &GatewayError{Op: op, StatusCode: res.StatusCode, Err: err}
	}
	c.log.Debug("provider call", zap.String("op", op), zap.Int("status", res.StatusCode), zap.Duration("took", time.Since(start)))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return apiResponse{}, raw, &GatewayError{Op: op, StatusCode: res.StatusCode, Err: errors.New("unexpected status")}
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return apiResponse{}, raw, &GatewayError{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return out, raw, nil
}
