package payment

import (
	"encoding/json"
	"strings"
	"time"

	"loteo/internal/pkg/errs"
)

const (
	MaxBuyOrderLen  = 26
	MaxSessionIDLen = 61
)

type CreateRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

func (r CreateRequest) Validate() error {
	switch {
	case r.BuyOrder == "" || len(r.BuyOrder) > MaxBuyOrderLen:
		return errs.Wrapf(ErrInvalidRequest, "buy_order must be 1..%d chars", MaxBuyOrderLen)
	case r.SessionID == "" || len(r.SessionID) > MaxSessionIDLen:
		return errs.Wrapf(ErrInvalidRequest, "session_id must be 1..%d chars", MaxSessionIDLen)
	case r.Amount <= 0:
		return errs.Wrap(ErrInvalidRequest, "amount must be positive")
	case strings.TrimSpace(r.ReturnURL) == "":
		return errs.Wrap(ErrInvalidRequest, "return_url is required")
	}
	return nil
}

type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// RedirectURL is where the buyer's browser must be sent (as a POST form or a
// GET with token_ws) to reach the Webpay payment form.
func (r CreateResponse) RedirectURL() string {
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + "token_ws=" + r.Token
}

type CardDetail struct {
	CardNumber string `json:"card_number"`
}

type CommitResponse struct {
	VCI                string     `json:"vci"`
	Amount             int64      `json:"amount"`
	Status             string     `json:"status"`
	BuyOrder           string     `json:"buy_order"`
	SessionID          string     `json:"session_id"`
	CardDetail         CardDetail `json:"card_detail"`
	AccountingDate     string     `json:"accounting_date"`
	TransactionDate    *time.Time `json:"transaction_date"`
	AuthorizationCode  string     `json:"authorization_code"`
	PaymentTypeCode    string     `json:"payment_type_code"`
	ResponseCode       int        `json:"response_code"`
	InstallmentsAmount int64      `json:"installments_amount"`
	InstallmentsNumber int        `json:"installments_number"`

	Raw json.RawMessage `json:"-"`
}

// Authorized is the only verdict that sells a lot.
func (r *CommitResponse) Authorized() bool {
	return r != nil && r.ResponseCode == 0 && r.Status == StatusAuthorized
}
