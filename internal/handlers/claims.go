// Package handlers provides the HTTP API of the escrow service.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/transfer"
)

// DefaultLinkWait bounds how long POST /links waits for the verifier.
const DefaultLinkWait = 10 * time.Second

// ClaimHandler serves linking, deposits, settlement and the read surface.
type ClaimHandler struct {
	coordinator *settlement.Coordinator
	linkWait    time.Duration
	logger      *slog.Logger
}

// LinkRequest is the body for POST /links.
type LinkRequest struct {
	Platform string      `json:"platform"`
	Handle   string      `json:"handle"`
	Proof    proof.Proof `json:"proof"`
}

// LinkResponse reports the link outcome, or that verification is still running.
type LinkResponse struct {
	Ticket   string `json:"ticket"`
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	Account  string `json:"account"`
	Status   string `json:"status"`
}

// NativeDepositRequest is the deposit notification the native-ledger custodian posts.
type NativeDepositRequest struct {
	SenderID string `json:"sender_id"`
	Amount   string `json:"amount"`
	Msg      string `json:"msg"`
}

// FungibleDepositRequest is the transfer-call notification a fungible custodian posts.
type FungibleDepositRequest struct {
	SenderID string `json:"sender_id"`
	Amount   string `json:"amount"`
	Msg      string `json:"msg"`
}

// FungibleDepositResponse always refunds nothing.
type FungibleDepositResponse struct {
	Refund  string      `json:"refund"`
	Deposit DepositView `json:"deposit"`
}

// NonFungibleDepositRequest is the transfer-call notification a non-fungible custodian posts.
type NonFungibleDepositRequest struct {
	SenderID        string `json:"sender_id"`
	PreviousOwnerID string `json:"previous_owner_id"`
	TokenID         string `json:"token_id"`
	Msg             string `json:"msg"`
}

// NonFungibleDepositResponse always keeps the token.
type NonFungibleDepositResponse struct {
	Returned bool        `json:"returned"`
	Deposit  DepositView `json:"deposit"`
}

// ReclaimRequest optionally names the handle the claim was made for.
type ReclaimRequest struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

// CompletionRequest is posted by custodians that report transfer results asynchronously.
type CompletionRequest struct {
	Continuation string `json:"continuation"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// HandleResponse describes one handle.
type HandleResponse struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	Linked   bool   `json:"linked"`
	Account  string `json:"account,omitempty"`
	Pending  int    `json:"pending"`
}

// ClaimListResponse is one page of claims.
type ClaimListResponse struct {
	Items []ClaimView `json:"items"`
	Count int         `json:"count"`
}

func NewClaimHandler(log *slog.Logger, coordinator *settlement.Coordinator, linkWait time.Duration) *ClaimHandler {
	if linkWait <= 0 {
		linkWait = DefaultLinkWait
	}
	return &ClaimHandler{
		coordinator: coordinator,
		linkWait:    linkWait,
		logger:      log.With(slog.String("handler", "claims")),
	}
}

func (h *ClaimHandler) Register(e *echo.Echo) {
	e.POST("/links", h.Link)
	e.POST("/deposits/native", h.NativeDeposit)
	e.POST("/deposits/ft", h.FungibleDeposit)
	e.POST("/deposits/nft", h.NonFungibleDeposit)
	e.POST("/handles/:platform/:handle/settle", h.Settle)
	e.POST("/claims/:id/reclaim", h.Reclaim)
	e.POST("/transfers/complete", h.CompleteTransfer)

	e.GET("/handles/:platform/:handle", h.GetHandle)
	e.GET("/handles/:platform/:handle/claims", h.ListPending)
	e.GET("/claims/:id", h.GetClaim)
	e.GET("/senders/:account/claims", h.ListBySender)
}

// Link starts an identity link and waits a bounded time for the verdict.
func (h *ClaimHandler) Link(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	var req LinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hd := handle.New(req.Platform, req.Handle)
	ticket, err := h.coordinator.RequestLink(c.Request().Context(), hd, req.Proof, caller)
	if err != nil {
		return httpError(err)
	}
	resp := LinkResponse{
		Ticket:   ticket.ID,
		Platform: ticket.Handle.Platform,
		Handle:   ticket.Handle.Handle,
		Account:  ticket.Account,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.linkWait)
	defer cancel()
	if err := ticket.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			resp.Status = "pending"
			return c.JSON(http.StatusAccepted, resp)
		}
		return httpError(err)
	}
	resp.Status = "linked"
	return c.JSON(http.StatusOK, resp)
}

// NativeDeposit handles the native-ledger custodian's deposit notification; the caller is the custodian.
func (h *ClaimHandler) NativeDeposit(c echo.Context) error {
	custodian, err := RequireCaller(c)
	if err != nil {
		return err
	}
	var req NativeDepositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	amount, err := asset.ParseAmount(req.Amount)
	if err != nil {
		return httpError(err)
	}
	d, err := h.coordinator.OnNativeDeposit(c.Request().Context(), custodian, req.SenderID, amount, req.Msg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(statusFor(d), depositView(d))
}

// FungibleDeposit handles a custodian's transfer-call notification; the caller is the custodian.
func (h *ClaimHandler) FungibleDeposit(c echo.Context) error {
	custodian, err := RequireCaller(c)
	if err != nil {
		return err
	}
	var req FungibleDepositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	amount, err := asset.ParseAmount(req.Amount)
	if err != nil {
		return httpError(err)
	}
	d, err := h.coordinator.OnFungibleDeposit(c.Request().Context(), custodian, req.SenderID, amount, req.Msg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(statusFor(d), FungibleDepositResponse{Refund: "0", Deposit: depositView(d)})
}

// NonFungibleDeposit handles a custodian's token transfer-call notification.
func (h *ClaimHandler) NonFungibleDeposit(c echo.Context) error {
	custodian, err := RequireCaller(c)
	if err != nil {
		return err
	}
	var req NonFungibleDepositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.coordinator.OnNonFungibleDeposit(c.Request().Context(), custodian, req.SenderID, req.PreviousOwnerID, req.TokenID, req.Msg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(statusFor(d), NonFungibleDepositResponse{Returned: false, Deposit: depositView(d)})
}

func statusFor(d settlement.Deposit) int {
	if d.Forwarded() {
		return http.StatusOK
	}
	return http.StatusCreated
}

// Settle dispatches one batch of pending claims to the linked caller.
func (h *ClaimHandler) Settle(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	hd, err := handleParam(c)
	if err != nil {
		return err
	}
	report, err := h.coordinator.Settle(c.Request().Context(), hd, caller)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, report)
}

// Reclaim returns an expired claim to the calling sender.
func (h *ClaimHandler) Reclaim(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	id, err := claimIDParam(c)
	if err != nil {
		return err
	}
	var req ReclaimRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if req.Platform == "" && req.Handle == "" {
		req.Platform, req.Handle = c.QueryParam("platform"), c.QueryParam("handle")
	}
	if err := h.coordinator.Reclaim(c.Request().Context(), handle.New(req.Platform, req.Handle), id, caller); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{"claim_id": id, "status": "dispatched"})
}

// CompleteTransfer applies an asynchronously reported transfer result. Owner only.
func (h *ClaimHandler) CompleteTransfer(c echo.Context) error {
	caller, err := RequireCaller(c)
	if err != nil {
		return err
	}
	if caller != h.coordinator.Owner() {
		return httpError(settlement.ErrUnauthorized)
	}
	var req CompletionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cont, err := transfer.DecodeContinuation(req.Continuation)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var result error
	if !req.Success {
		msg := strings.TrimSpace(req.Error)
		if msg == "" {
			msg = "reported by custodian"
		}
		result = fmt.Errorf("%w: %s", transfer.ErrTransferFailed, msg)
	}
	if err := h.coordinator.OnTransferComplete(c.Request().Context(), cont, result); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ClaimHandler) GetHandle(c echo.Context) error {
	hd, err := handleParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	account, linked, err := h.coordinator.LinkedAccount(ctx, hd)
	if err != nil {
		return httpError(err)
	}
	pending, err := h.coordinator.PendingCount(ctx, hd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, HandleResponse{
		Platform: hd.Platform,
		Handle:   hd.Handle,
		Linked:   linked,
		Account:  account,
		Pending:  pending,
	})
}

// ListPending pages through a handle's pending claims; count is the full pending total.
func (h *ClaimHandler) ListPending(c echo.Context) error {
	hd, err := handleParam(c)
	if err != nil {
		return err
	}
	from, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	claims, err := h.coordinator.PendingClaims(ctx, hd, from, limit)
	if err != nil {
		return httpError(err)
	}
	count, err := h.coordinator.PendingCount(ctx, hd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ClaimListResponse{Items: claimViews(claims), Count: count})
}

func (h *ClaimHandler) GetClaim(c echo.Context) error {
	id, err := claimIDParam(c)
	if err != nil {
		return err
	}
	claim, ok, err := h.coordinator.Claim(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(settlement.ErrClaimNotFound)
	}
	return c.JSON(http.StatusOK, claimView(claim))
}

func (h *ClaimHandler) ListBySender(c echo.Context) error {
	from, limit, err := pageParams(c)
	if err != nil {
		return err
	}
	claims, err := h.coordinator.ClaimsBySender(c.Request().Context(), c.Param("account"), from, limit)
	if err != nil {
		return httpError(err)
	}
	views := claimViews(claims)
	return c.JSON(http.StatusOK, ClaimListResponse{Items: views, Count: len(views)})
}
