package phonepe

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	PayPath    = "/pg/v1/pay"
	StatusPath = "/pg/v1/status"

	CodePaymentSuccess = "PAYMENT_SUCCESS"
	CodePaymentPending = "PAYMENT_PENDING"
	StateCompleted     = "COMPLETED"
)

var ErrBadSignature = errors.New("phonepe: signature mismatch")

// Intent is what the caller knows about a payment attempt; the client adds
// merchant identity and the redirect/callback URLs.
type Intent struct {
	TransactionID string
	UserID        string
	AmountMinor   int64
	Mobile        string
}

type PaymentInstrument struct {
	Type string `json:"type"`
}

// PayRequest is the payload that gets base64 encoded and signed.
type PayRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     PaymentInstrument `json:"paymentInstrument"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type payData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	InstrumentResponse    struct {
		Type         string `json:"type"`
		RedirectInfo struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type statusData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// Result is the provider's decision, passed through unmodified. Success
// false is a decline, not an error.
type Result struct {
	Success               bool
	Code                  string
	Message               string
	RedirectURL           string
	ProviderTransactionID string
	MerchantTransactionID string
	Amount                int64
	State                 string
	Raw                   json.RawMessage
}

// Paid reports a completed payment.
func (r Result) Paid() bool {
	if !r.Success || r.Code == CodePaymentPending {
		return false
	}
	return r.State == "" || r.State == StateCompleted
}

// Pending reports a payment the provider has not settled yet.
func (r Result) Pending() bool {
	return r.Code == CodePaymentPending || r.State == "PENDING"
}

// GatewayError covers transport failures, non-2xx answers and bodies that
// cannot be decoded.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("phonepe %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("phonepe %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
