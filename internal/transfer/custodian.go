package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/claimd/internal/asset"
)

// HTTPCustodian hands transfers of one asset kind to an external custody service.
type HTTPCustodian struct {
	kind   asset.Kind
	url    string
	apiKey  string
	timeout time.Duration
	logger  *slog.Logger
	http    *http.Client
}

func NewHTTPCustodian(log *slog.Logger, kind asset.Kind, url, apiKey string, timeout time.Duration) (*HTTPCustodian, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("custodian: unknown asset kind %q", kind)
	}
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("custodian %s: url is required", kind)
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCustodian{
		kind:    kind,
		url:     strings.TrimRight(url, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		logger:  log.With(slog.String("client", "custodian"), slog.String("kind", kind.String())),
		http:    &http.Client{},
	}, nil
}

func (c *HTTPCustodian) Kind() asset.Kind { return c.kind }

type fungibleBody struct {
	ReceiverID string `json:"receiver_id"`
	Contract   string `json:"contract,omitempty"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

type nonFungibleBody struct {
	ReceiverID string  `json:"receiver_id"`
	Contract   string  `json:"contract"`
	TokenID    string  `json:"token_id"`
	ApprovalID *uint64 `json:"approval_id"`
	Memo       string  `json:"memo,omitempty"`
}

func (c *HTTPCustodian) Transfer(ctx context.Context, req Request) error {
	if req.Asset == nil || req.Asset.Kind() != c.kind {
		return fmt.Errorf("%w: custodian %s cannot move %v", ErrTransferFailed, c.kind, req.Asset)
	}
	var body any
	switch a := req.Asset.(type) {
	case asset.Native:
		body = fungibleBody{ReceiverID: req.Recipient, Amount: asset.FormatAmount(a.Value), Memo: req.Memo}
	case asset.FungibleToken:
		body = fungibleBody{ReceiverID: req.Recipient, Contract: a.Contract, Amount: asset.FormatAmount(a.Value), Memo: req.Memo}
	case asset.NonFungibleToken:
		body = nonFungibleBody{ReceiverID: req.Recipient, Contract: a.Contract, TokenID: a.TokenID, Memo: req.Memo}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
		c.logger.Warn("custodian refused transfer",
			slog.Int("status", resp.StatusCode),
			slog.String("recipient", req.Recipient),
		)
		return fmt.Errorf("%w: status %d: %s", ErrTransferFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
