package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/grocerpal/salewatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS price_history (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_name  TEXT NOT NULL,
	retailer      TEXT NOT NULL,
	price         DOUBLE PRECISION,
	was_price     DOUBLE PRECISION,
	on_sale       BOOLEAN NOT NULL DEFAULT FALSE,
	promo_text    TEXT,
	url           TEXT,
	date_recorded DATE NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(product_name, retailer, date_recorded)
);

CREATE TABLE IF NOT EXISTS alternative_products (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	search_query  TEXT NOT NULL,
	retailer      TEXT NOT NULL,
	product_name  TEXT NOT NULL,
	price         DOUBLE PRECISION,
	was_price     DOUBLE PRECISION,
	on_sale       BOOLEAN NOT NULL DEFAULT FALSE,
	promo_text    TEXT,
	url           TEXT,
	match_score   DOUBLE PRECISION,
	rank_position INTEGER,
	date_recorded DATE NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS favorites (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_name TEXT NOT NULL,
	retailer     TEXT NOT NULL DEFAULT 'woolworths',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(product_name, retailer)
);

CREATE INDEX IF NOT EXISTS idx_product_retailer_date
	ON price_history(product_name, retailer, date_recorded);
CREATE INDEX IF NOT EXISTS idx_alternatives_query_retailer_date
	ON alternative_products(search_query, retailer, date_recorded);
CREATE INDEX IF NOT EXISTS idx_alternatives_product_name
	ON alternative_products(product_name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendPriceRecord(ctx context.Context, rec model.PriceRecord) error {
	if rec.ProductName == "" || rec.Retailer == "" {
		return eris.New("postgres: price record needs product name and retailer")
	}

	day := rec.Day()
	if day.IsZero() {
		day = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_history (id, product_name, retailer, price, was_price, on_sale, promo_text, url, date_recorded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_name, retailer, date_recorded) DO UPDATE SET
			price = EXCLUDED.price,
			was_price = EXCLUDED.was_price,
			on_sale = EXCLUDED.on_sale,
			promo_text = EXCLUDED.promo_text,
			url = EXCLUDED.url`,
		uuid.New().String(),
		NormalizeName(rec.ProductName),
		rec.Retailer,
		rec.Price,
		rec.WasPrice,
		rec.OnSale,
		rec.PromoText,
		rec.URL,
		day,
	)
	return eris.Wrapf(err, "postgres: append price record %s", rec.ProductName)
}

func (s *PostgresStore) QueryHistory(ctx context.Context, productName string, filter HistoryFilter) ([]model.PriceRecord, error) {
	query := `
		SELECT id, product_name, retailer, price, was_price, on_sale, promo_text, url, date_recorded, created_at
		FROM price_history
		WHERE product_name = $1 AND date_recorded >= $2`
	args := []any{NormalizeName(productName), cutoffDate(filter.DaysBack)}

	if filter.Retailer != "" {
		query += ` AND retailer = $3`
		args = append(args, filter.Retailer)
	}
	query += ` ORDER BY date_recorded ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query history")
	}
	defer rows.Close()

	var records []model.PriceRecord
	for rows.Next() {
		var rec model.PriceRecord
		if err := rows.Scan(&rec.ID, &rec.ProductName, &rec.Retailer, &rec.Price, &rec.WasPrice,
			&rec.OnSale, &rec.PromoText, &rec.URL, &rec.DateRecorded, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: query history iterate")
}

func (s *PostgresStore) ListTrackedProducts(ctx context.Context) ([]model.ProductSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.product_name, p.retailer,
			COUNT(*) AS record_count,
			MIN(p.date_recorded) AS first_seen,
			MAX(p.date_recorded) AS last_seen,
			(SELECT price FROM price_history q
				WHERE q.product_name = p.product_name AND q.retailer = p.retailer
				ORDER BY q.date_recorded DESC LIMIT 1) AS last_price,
			(SELECT on_sale FROM price_history q
				WHERE q.product_name = p.product_name AND q.retailer = p.retailer
				ORDER BY q.date_recorded DESC LIMIT 1) AS last_on_sale
		FROM price_history p
		GROUP BY p.product_name, p.retailer
		ORDER BY last_seen DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tracked products")
	}
	defer rows.Close()

	var products []model.ProductSummary
	for rows.Next() {
		var (
			p          model.ProductSummary
			lastOnSale *bool
		)
		if err := rows.Scan(&p.ProductName, &p.Retailer, &p.RecordCount,
			&p.FirstRecorded, &p.LastRecorded, &p.LastPrice, &lastOnSale); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracked product")
		}
		p.LastOnSale = lastOnSale != nil && *lastOnSale
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list tracked products iterate")
}

func (s *PostgresStore) DeleteProductHistory(ctx context.Context, productName, retailer string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_history WHERE product_name = $1 AND retailer = $2`,
		NormalizeName(productName), retailer,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete history %s", productName)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ClearAll(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM price_history`,
		`DELETE FROM alternative_products`,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "postgres: clear %s", stmt)
		}
	}
	return nil
}

func (s *PostgresStore) LogAlternatives(ctx context.Context, searchQuery, retailer string, day time.Time, alts []model.RankedAlternative) error {
	if searchQuery == "" || retailer == "" || len(alts) == 0 {
		return eris.New("postgres: alternatives log needs query, retailer and rows")
	}

	normalizedQuery := NormalizeName(searchQuery)
	recordDay := day.UTC().Truncate(24 * time.Hour)

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM alternative_products WHERE search_query = $1 AND retailer = $2 AND date_recorded = $3`,
		normalizedQuery, retailer, recordDay,
	); err != nil {
		return eris.Wrap(err, "postgres: delete day alternatives")
	}

	for i, alt := range alts {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO alternative_products (id, search_query, retailer, product_name, price, was_price, on_sale, promo_text, url, match_score, rank_position, date_recorded)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.New().String(),
			normalizedQuery,
			retailer,
			NormalizeName(alt.Name),
			alt.Price,
			alt.Was,
			alt.OnSale,
			alt.PromoText,
			alt.URL,
			alt.MatchScore,
			i+1,
			recordDay,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert alternative %d", i+1)
		}
	}
	return nil
}

func (s *PostgresStore) AlternativesFor(ctx context.Context, searchQuery string, filter HistoryFilter) ([]model.AlternativeRecord, error) {
	query := `
		SELECT id, search_query, retailer, product_name, price, was_price, on_sale, promo_text, url, match_score, rank_position, date_recorded, created_at
		FROM alternative_products
		WHERE search_query = $1 AND date_recorded >= $2`
	args := []any{NormalizeName(searchQuery), cutoffDate(filter.DaysBack)}

	if filter.Retailer != "" {
		query += ` AND retailer = $3`
		args = append(args, filter.Retailer)
	}
	query += ` ORDER BY date_recorded DESC, rank_position ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query alternatives")
	}
	defer rows.Close()

	var records []model.AlternativeRecord
	for rows.Next() {
		var (
			rec   model.AlternativeRecord
			score *float64
		)
		if err := rows.Scan(&rec.ID, &rec.SearchQuery, &rec.Retailer, &rec.ProductName,
			&rec.Price, &rec.WasPrice, &rec.OnSale, &rec.PromoText, &rec.URL,
			&score, &rec.RankPosition, &rec.DateRecorded, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alternative")
		}
		if score != nil {
			rec.MatchScore = *score
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: query alternatives iterate")
}

func (s *PostgresStore) AddFavorite(ctx context.Context, productName, retailer string) (bool, error) {
	if retailer == "" {
		retailer = "woolworths"
	}

	var existing string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM favorites WHERE product_name = $1 AND retailer = $2`,
		productName, retailer,
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, eris.Wrap(err, "postgres: check favorite")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO favorites (id, product_name, retailer) VALUES ($1, $2, $3)`,
		uuid.New().String(), productName, retailer,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: add favorite %s", productName)
	}
	return true, nil
}

func (s *PostgresStore) ListFavorites(ctx context.Context) ([]model.Favorite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_name, retailer, created_at FROM favorites ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list favorites")
	}
	defer rows.Close()

	var favorites []model.Favorite
	for rows.Next() {
		var f model.Favorite
		if err := rows.Scan(&f.ID, &f.ProductName, &f.Retailer, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan favorite")
		}
		favorites = append(favorites, f)
	}
	return favorites, eris.Wrap(rows.Err(), "postgres: list favorites iterate")
}

func (s *PostgresStore) RemoveFavorite(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM favorites WHERE id = $1`, id)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: remove favorite %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT product_name), COUNT(DISTINCT retailer),
			MIN(date_recorded), MAX(date_recorded)
		FROM price_history`).
		Scan(&stats.PriceRecords, &stats.UniqueProducts, &stats.UniqueRetailers,
			&stats.OldestRecord, &stats.NewestRecord)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: price history stats")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT search_query) FROM alternative_products`).
		Scan(&stats.AlternativeRecords, &stats.UniqueQueries)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: alternatives stats")
	}
	return &stats, nil
}
