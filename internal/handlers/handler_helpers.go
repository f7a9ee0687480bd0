package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/auth"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/storage"
)

// RequireCaller returns the account named by the bearer token.
func RequireCaller(c echo.Context) (string, error) {
	account, err := auth.AccountFromContext(c)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return account, nil
}

// handleParam reads the :platform and :handle path params.
func handleParam(c echo.Context) (handle.Handle, error) {
	h := handle.New(c.Param("platform"), c.Param("handle"))
	if err := h.Validate(); err != nil {
		return handle.Handle{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h, nil
}

func claimIDParam(c echo.Context) (storage.ClaimID, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	return storage.ClaimID(id), nil
}

// pageParams reads ?from=&limit=. Missing values mean the first page at the maximum size.
func pageParams(c echo.Context) (int, int, error) {
	from, err := intQuery(c, "from", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := intQuery(c, "limit", settlement.MaxPageSize)
	if err != nil {
		return 0, 0, err
	}
	return from, limit, nil
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

// ClaimView is the wire form of a claim.
type ClaimView struct {
	ID        storage.ClaimID `json:"id"`
	Handle    handle.Handle   `json:"handle"`
	Asset     asset.Record    `json:"asset"`
	Sender    string          `json:"sender"`
	CreatedAt string          `json:"created_at"`
	ExpiresAt string          `json:"expires_at"`
	Settled   bool            `json:"settled"`
	Reclaimed bool            `json:"reclaimed"`
}

func claimView(claim storage.Claim) ClaimView {
	return ClaimView{
		ID:        claim.ID,
		Handle:    claim.Handle,
		Asset:     asset.ToRecord(claim.Asset),
		Sender:    claim.Sender,
		CreatedAt: claim.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: claim.ExpiresAt.UTC().Format(time.RFC3339),
		Settled:   claim.Settled,
		Reclaimed: claim.Reclaimed,
	}
}

func claimViews(claims []storage.Claim) []ClaimView {
	out := make([]ClaimView, 0, len(claims))
	for _, claim := range claims {
		out = append(out, claimView(claim))
	}
	return out
}

// DepositView reports where a deposit went.
type DepositView struct {
	Handle    handle.Handle `json:"handle"`
	Forwarded bool          `json:"forwarded"`
	Recipient string        `json:"recipient,omitempty"`
	Claim     *ClaimView    `json:"claim,omitempty"`
}

func depositView(d settlement.Deposit) DepositView {
	out := DepositView{Handle: d.Handle, Forwarded: d.Forwarded(), Recipient: d.Recipient}
	if d.Claim != nil {
		v := claimView(*d.Claim)
		out.Claim = &v
	}
	return out
}
