package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/db"
	"github.com/memohai/claimd/internal/handle"
)

// Postgres is a Store backed by the tables in db/migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. Migrations must already be applied.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const claimColumns = `id, platform, handle, asset_kind, contract, token_id, amount::text, sender, created_at, expires_at, settled, reclaimed`

func (p *Postgres) Init(ctx context.Context, owner string) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin init tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT owner FROM settings WHERE id = 1 FOR UPDATE`).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `INSERT INTO settings (id, owner) VALUES (1, $1)`, owner); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyInitialized
			}
			return fmt.Errorf("insert settings: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lock settings: %w", err)
	case current != owner:
		return ErrAlreadyInitialized
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit init tx: %w", err)
	}
	return nil
}

func (p *Postgres) Owner(ctx context.Context) (string, error) {
	var owner string
	err := p.pool.QueryRow(ctx, `SELECT owner FROM settings WHERE id = 1`).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotInitialized
	}
	if err != nil {
		return "", fmt.Errorf("get owner: %w", err)
	}
	return owner, nil
}

func (p *Postgres) LinkedAccount(ctx context.Context, h handle.Handle) (string, bool, error) {
	var account string
	err := p.pool.QueryRow(ctx, `SELECT account FROM linked_accounts WHERE handle_key = $1`, h.Key()).Scan(&account)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get linked account: %w", err)
	}
	return account, true, nil
}

func (p *Postgres) LinkAccount(ctx context.Context, h handle.Handle, account string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO linked_accounts (handle_key, platform, handle, account) VALUES ($1, $2, $3, $4)`,
		h.Key(), h.Platform, h.Handle, account,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("link account: %w", err)
	}
	return nil
}

func (p *Postgres) CreateClaim(ctx context.Context, c NewClaim) (Claim, error) {
	rec := asset.ToRecord(c.Asset)
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Claim{}, fmt.Errorf("begin create claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO claims (handle_key, platform, handle, asset_kind, contract, token_id, amount, sender, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
		 RETURNING id`,
		c.Handle.Key(), c.Handle.Platform, c.Handle.Handle,
		string(rec.Kind), db.StringToText(rec.Contract), db.StringToText(rec.TokenID), rec.Amount,
		c.Sender, c.CreatedAt, c.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return Claim{}, fmt.Errorf("insert claim: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO pending_claims (handle_key, claim_id) VALUES ($1, $2)`,
		c.Handle.Key(), id,
	); err != nil {
		return Claim{}, fmt.Errorf("insert pending claim: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Claim{}, fmt.Errorf("commit create claim tx: %w", err)
	}

	return Claim{
		ID:        ClaimID(id),
		Handle:    c.Handle,
		Asset:     c.Asset,
		Sender:    c.Sender,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
	}, nil
}

func (p *Postgres) Claim(ctx context.Context, id ClaimID) (Claim, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, int64(id))
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Claim{}, false, nil
	}
	if err != nil {
		return Claim{}, false, fmt.Errorf("get claim: %w", err)
	}
	return c, true, nil
}

func (p *Postgres) MarkSettled(ctx context.Context, id ClaimID) (bool, error) {
	return p.setFlag(ctx, id, "settled")
}

func (p *Postgres) MarkReclaimed(ctx context.Context, id ClaimID) (bool, error) {
	return p.setFlag(ctx, id, "reclaimed")
}

// setFlag flips a boolean column from false to true; column is never caller input.
func (p *Postgres) setFlag(ctx context.Context, id ClaimID, column string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE claims SET `+column+` = true WHERE id = $1 AND NOT `+column,
		int64(id),
	)
	if err != nil {
		return false, fmt.Errorf("mark claim %s: %w", column, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, int64(id)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}
	if !exists {
		return false, ErrClaimNotFound
	}
	return false, nil
}

func (p *Postgres) ClaimsBySender(ctx context.Context, sender string, from, limit int) ([]Claim, error) {
	if limit <= 0 {
		return []Claim{}, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE sender = $1 ORDER BY id OFFSET $2 LIMIT $3`,
		sender, max(from, 0), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list claims by sender: %w", err)
	}
	return collectClaims(rows)
}

func (p *Postgres) PendingIDs(ctx context.Context, h handle.Handle, limit int) ([]ClaimID, error) {
	if limit <= 0 {
		return []ClaimID{}, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT claim_id FROM pending_claims WHERE handle_key = $1 ORDER BY claim_id LIMIT $2`,
		h.Key(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending ids: %w", err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan pending ids: %w", err)
	}
	ids := make([]ClaimID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, ClaimID(id))
	}
	return ids, nil
}

func (p *Postgres) PendingCount(ctx context.Context, h handle.Handle) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM pending_claims WHERE handle_key = $1`, h.Key()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending claims: %w", err)
	}
	return n, nil
}

func (p *Postgres) PendingClaims(ctx context.Context, h handle.Handle, from, limit int) ([]Claim, error) {
	if limit <= 0 {
		return []Claim{}, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+prefixed("c", claimColumns)+`
		 FROM pending_claims pc JOIN claims c ON c.id = pc.claim_id
		 WHERE pc.handle_key = $1
		 ORDER BY pc.claim_id OFFSET $2 LIMIT $3`,
		h.Key(), max(from, 0), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending claims: %w", err)
	}
	return collectClaims(rows)
}

func (p *Postgres) Prune(ctx context.Context, h handle.Handle, ids ...ClaimID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]int64, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, int64(id))
	}
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM pending_claims WHERE handle_key = $1 AND claim_id = ANY($2)`,
		h.Key(), raw,
	)
	if err != nil {
		return 0, fmt.Errorf("prune pending claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]PendingRef, error) {
	if limit <= 0 {
		return []PendingRef{}, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT c.platform, c.handle, c.id
		 FROM pending_claims pc JOIN claims c ON c.id = pc.claim_id
		 WHERE c.expires_at <= $1
		 ORDER BY c.id LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired claims: %w", err)
	}
	defer rows.Close()
	refs := make([]PendingRef, 0)
	for rows.Next() {
		var (
			ref PendingRef
			id  int64
		)
		if err := rows.Scan(&ref.Handle.Platform, &ref.Handle.Handle, &id); err != nil {
			return nil, fmt.Errorf("scan expired claim: %w", err)
		}
		ref.ClaimID = ClaimID(id)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (p *Postgres) RegisterToken(ctx context.Context, t Token) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO supported_tokens (token_id, standard, decimals, symbol, chain)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (token_id) DO UPDATE
		 SET standard = EXCLUDED.standard, decimals = EXCLUDED.decimals, symbol = EXCLUDED.symbol, chain = EXCLUDED.chain`,
		strings.TrimSpace(t.ID), string(t.Info.Standard), int16(t.Info.Decimals), t.Info.Symbol, t.Info.Chain,
	)
	if err != nil {
		return fmt.Errorf("register token: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveToken(ctx context.Context, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM supported_tokens WHERE token_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return false, fmt.Errorf("remove token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Token(ctx context.Context, id string) (TokenInfo, bool, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT token_id, standard, decimals, symbol, chain FROM supported_tokens WHERE token_id = $1`,
		strings.TrimSpace(id),
	)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenInfo{}, false, nil
	}
	if err != nil {
		return TokenInfo{}, false, fmt.Errorf("get token: %w", err)
	}
	return t.Info, true, nil
}

func (p *Postgres) Tokens(ctx context.Context, from, limit int) ([]Token, error) {
	if limit <= 0 {
		return []Token{}, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT token_id, standard, decimals, symbol, chain FROM supported_tokens ORDER BY token_id OFFSET $1 LIMIT $2`,
		max(from, 0), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()
	items := make([]Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (p *Postgres) Paused(ctx context.Context) (bool, error) {
	var paused bool
	err := p.pool.QueryRow(ctx, `SELECT paused FROM settings WHERE id = 1`).Scan(&paused)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get paused: %w", err)
	}
	return paused, nil
}

func (p *Postgres) SetPaused(ctx context.Context, paused bool) error {
	tag, err := p.pool.Exec(ctx, `UPDATE settings SET paused = $1 WHERE id = 1`, paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotInitialized
	}
	return nil
}

func scanClaim(row pgx.Row) (Claim, error) {
	var (
		c         Claim
		id        int64
		kind      string
		contract  pgtype.Text
		tokenID   pgtype.Text
		amount    string
		createdAt time.Time
		expiresAt time.Time
	)
	if err := row.Scan(&id, &c.Handle.Platform, &c.Handle.Handle, &kind, &contract, &tokenID, &amount,
		&c.Sender, &createdAt, &expiresAt, &c.Settled, &c.Reclaimed); err != nil {
		return Claim{}, err
	}
	a, err := asset.FromRecord(asset.Record{
		Kind:     asset.Kind(kind),
		Contract: db.TextToString(contract),
		TokenID:  db.TextToString(tokenID),
		Amount:   amount,
	})
	if err != nil {
		return Claim{}, fmt.Errorf("decode claim %d asset: %w", id, err)
	}
	c.ID = ClaimID(id)
	c.Asset = a
	c.CreatedAt = createdAt.UTC()
	c.ExpiresAt = expiresAt.UTC()
	return c, nil
}

func collectClaims(rows pgx.Rows) ([]Claim, error) {
	defer rows.Close()
	out := make([]Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanToken(row pgx.Row) (Token, error) {
	var (
		t        Token
		standard string
		decimals int16
	)
	if err := row.Scan(&t.ID, &standard, &decimals, &t.Info.Symbol, &t.Info.Chain); err != nil {
		return Token{}, err
	}
	t.Info.Standard = TokenStandard(standard)
	t.Info.Decimals = uint8(decimals)
	return t, nil
}

// prefixed qualifies every column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
