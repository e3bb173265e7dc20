package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"loteo/internal/config"
	"loteo/internal/pkg/errs"
)

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

// WebpayClient talks to Transbank Webpay Plus over its REST API. Calls are
// never retried: a failed create leaves the hold to expire, and a failed
// commit is reported upstream.
type WebpayClient struct {
	baseURL      string
	commerceCode string
	apiKey       string
	client       *http.Client
}

type webpayError struct {
	ErrorMessage string `json:"error_message"`
}

func NewWebpayClient(cfg config.WebpayConfig) *WebpayClient {
	return &WebpayClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		commerceCode: cfg.CommerceCode,
		apiKey:       cfg.APIKey,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *WebpayClient) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(err, "marshal create request")
	}
	raw, err := c.do(ctx, http.MethodPost, c.baseURL+transactionsPath, body)
	if err != nil {
		return nil, err
	}

	var out CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "decode create response"), ErrGateway)
	}
	if out.Token == "" || out.URL == "" {
		return nil, errs.Wrap(ErrGateway, "create response without token or url")
	}
	return &out, nil
}

func (c *WebpayClient) Commit(ctx context.Context, token string) (*CommitResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errs.Wrap(ErrInvalidRequest, "token is required")
	}

	endpoint := c.baseURL + transactionsPath + "/" + url.PathEscape(token)
	raw, err := c.do(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out CommitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "decode commit response"), ErrGateway)
	}
	out.Raw = json.RawMessage(raw)
	return &out, nil
}

func (c *WebpayClient) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errs.Wrap(err, "build webpay request")
	}
	httpReq.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	httpReq.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "webpay %s", method), ErrGateway)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "read webpay response"), ErrGateway)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var we webpayError
		_ = json.Unmarshal(raw, &we)
		msg := we.ErrorMessage
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errs.Wrap(ErrGateway, fmt.Sprintf("webpay %s returned %d: %s", method, resp.StatusCode, msg))
	}
	return raw, nil
}
