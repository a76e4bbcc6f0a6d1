package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/omenmarket/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The resolution and claim guards are plain conditional UPDATEs
// (WHERE status = 'open' / WHERE NOT claimed) so concurrent racers
// serialize on the row and exactly one wins.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `id, title, category_id, creator_id,
	yes_pool::TEXT, no_pool::TEXT, price_yes::TEXT, price_no::TEXT,
	total_volume::TEXT, status, outcome, resolution_note,
	end_date, created_at, resolved_at,
	platform_fee_rate::TEXT, creator_fee_rate::TEXT`

const betColumns = `id, market_id, user_id, side,
	gross_amount::TEXT, platform_fee::TEXT, creator_fee::TEXT,
	net_stake::TEXT, price::TEXT, created_at,
	resolved, claimed, payout::TEXT, transfer_state, claimed_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	var platformRate, creatorRate *string
	if m.PlatformFeeRate != nil {
		v := m.PlatformFeeRate.String()
		platformRate = &v
	}
	if m.CreatorFeeRate != nil {
		v := m.CreatorFeeRate.String()
		creatorRate = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, title, category_id, creator_id,
		        yes_pool, no_pool, price_yes, price_no, total_volume,
		        status, outcome, resolution_note, end_date, created_at,
		        platform_fee_rate, creator_fee_rate)
		 VALUES ($1, $2, $3, $4,
		        $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		        $10, $11, $12, $13, $14,
		        $15::NUMERIC, $16::NUMERIC)`,
		m.ID, m.Title, m.CategoryID, m.CreatorID,
		m.YesPool.String(), m.NoPool.String(),
		m.PriceYes.String(), m.PriceNo.String(), m.TotalVolume.String(),
		m.Status, string(m.Outcome), m.ResolutionNote, m.EndDate, m.CreatedAt,
		platformRate, creatorRate,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) ExecuteBet(ctx context.Context, bet *model.Bet, newYes, newNo, priceYes, priceNo, totalVolume decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE markets
		 SET yes_pool = $2::NUMERIC, no_pool = $3::NUMERIC,
		     price_yes = $4::NUMERIC, price_no = $5::NUMERIC,
		     total_volume = $6::NUMERIC
		 WHERE id = $1 AND status = 'open'`,
		bet.MarketID,
		newYes.String(), newNo.String(),
		priceYes.String(), priceNo.String(), totalVolume.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMarketNotOpen
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bets (id, market_id, user_id, side,
		        gross_amount, platform_fee, creator_fee, net_stake, price,
		        created_at, resolved, claimed, payout, transfer_state)
		 VALUES ($1, $2, $3, $4,
		        $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		        $10, FALSE, FALSE, 0, '')`,
		bet.ID, bet.MarketID, bet.UserID, string(bet.Side),
		bet.GrossAmount.String(), bet.PlatformFee.String(), bet.CreatorFee.String(),
		bet.NetStake.String(), bet.Price.String(),
		bet.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ResolveMarket(ctx context.Context, id string, outcome model.Side, note string, resolvedAt time.Time) (*model.Market, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE markets
		 SET status = 'resolved', outcome = $2, resolution_note = $3, resolved_at = $4
		 WHERE id = $1 AND status = 'open'`,
		id, string(outcome), note, resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already resolved.
		var status string
		if err := tx.QueryRow(ctx,
			`SELECT status FROM markets WHERE id = $1`, id).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrMarketNotFound
			}
			return nil, err
		}
		return nil, ErrAlreadyResolved
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bets SET resolved = TRUE WHERE market_id = $1`, id); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id = $1`, id)

	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBetNotFound
		}
		return nil, fmt.Errorf("get bet %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) GetBetsByMarket(ctx context.Context, marketID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) GetBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

func (s *PostgresStore) ClaimBet(ctx context.Context, betID string, payout decimal.Decimal, transferState string, claimedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets
		 SET claimed = TRUE, payout = $2::NUMERIC, transfer_state = $3, claimed_at = $4
		 WHERE id = $1 AND NOT claimed`,
		betID, payout.String(), transferState, claimedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var claimed bool
		if err := s.pool.QueryRow(ctx,
			`SELECT claimed FROM bets WHERE id = $1`, betID).Scan(&claimed); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBetNotFound
			}
			return err
		}
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *PostgresStore) SetTransferState(ctx context.Context, betID, state string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET transfer_state = $2 WHERE id = $1`, betID, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBetNotFound
	}
	return nil
}

func (s *PostgresStore) ListUnsettledBets(ctx context.Context, limit int) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets
		 WHERE claimed AND transfer_state IN ('pending', 'sent', 'failed')
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBets(rows)
}

// --- scan helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row pgxRow) (*model.Market, error) {
	var m model.Market
	var yesPool, noPool, priceYes, priceNo, totalVolume string
	var outcome string
	var platformRate, creatorRate *string

	if err := row.Scan(&m.ID, &m.Title, &m.CategoryID, &m.CreatorID,
		&yesPool, &noPool, &priceYes, &priceNo,
		&totalVolume, &m.Status, &outcome, &m.ResolutionNote,
		&m.EndDate, &m.CreatedAt, &m.ResolvedAt,
		&platformRate, &creatorRate); err != nil {
		return nil, err
	}

	m.YesPool, _ = decimal.NewFromString(yesPool)
	m.NoPool, _ = decimal.NewFromString(noPool)
	m.PriceYes, _ = decimal.NewFromString(priceYes)
	m.PriceNo, _ = decimal.NewFromString(priceNo)
	m.TotalVolume, _ = decimal.NewFromString(totalVolume)
	m.Outcome = model.Side(outcome)
	if platformRate != nil {
		v, _ := decimal.NewFromString(*platformRate)
		m.PlatformFeeRate = &v
	}
	if creatorRate != nil {
		v, _ := decimal.NewFromString(*creatorRate)
		m.CreatorFeeRate = &v
	}

	return &m, nil
}

func scanBet(row pgxRow) (*model.Bet, error) {
	var b model.Bet
	var side string
	var gross, platformFee, creatorFee, netStake, price, payout string

	if err := row.Scan(&b.ID, &b.MarketID, &b.UserID, &side,
		&gross, &platformFee, &creatorFee,
		&netStake, &price, &b.CreatedAt,
		&b.Resolved, &b.Claimed, &payout, &b.TransferState, &b.ClaimedAt); err != nil {
		return nil, err
	}

	b.Side = model.Side(side)
	b.GrossAmount, _ = decimal.NewFromString(gross)
	b.PlatformFee, _ = decimal.NewFromString(platformFee)
	b.CreatorFee, _ = decimal.NewFromString(creatorFee)
	b.NetStake, _ = decimal.NewFromString(netStake)
	b.Price, _ = decimal.NewFromString(price)
	b.Payout, _ = decimal.NewFromString(payout)

	return &b, nil
}

func scanBets(rows pgx.Rows) ([]model.Bet, error) {
	var bets []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}
