package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/grocerpal/salewatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS price_history (
	id            TEXT PRIMARY KEY,
	product_name  TEXT NOT NULL,
	retailer      TEXT NOT NULL,
	price         REAL,
	was_price     REAL,
	on_sale       INTEGER NOT NULL DEFAULT 0,
	promo_text    TEXT,
	url           TEXT,
	date_recorded TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	UNIQUE(product_name, retailer, date_recorded)
);

CREATE TABLE IF NOT EXISTS alternative_products (
	id            TEXT PRIMARY KEY,
	search_query  TEXT NOT NULL,
	retailer      TEXT NOT NULL,
	product_name  TEXT NOT NULL,
	price         REAL,
	was_price     REAL,
	on_sale       INTEGER NOT NULL DEFAULT 0,
	promo_text    TEXT,
	url           TEXT,
	match_score   REAL,
	rank_position INTEGER,
	date_recorded TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS favorites (
	id           TEXT PRIMARY KEY,
	product_name TEXT NOT NULL,
	retailer     TEXT NOT NULL DEFAULT 'woolworths',
	created_at   DATETIME NOT NULL,
	UNIQUE(product_name, retailer)
);

CREATE INDEX IF NOT EXISTS idx_product_retailer_date
	ON price_history(product_name, retailer, date_recorded);
CREATE INDEX IF NOT EXISTS idx_alternatives_query_retailer_date
	ON alternative_products(search_query, retailer, date_recorded);
CREATE INDEX IF NOT EXISTS idx_alternatives_product_name
	ON alternative_products(product_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendPriceRecord(ctx context.Context, rec model.PriceRecord) error {
	if rec.ProductName == "" || rec.Retailer == "" {
		return eris.New("sqlite: price record needs product name and retailer")
	}

	day := rec.Day()
	if day.IsZero() {
		day = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_history (id, product_name, retailer, price, was_price, on_sale, promo_text, url, date_recorded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_name, retailer, date_recorded) DO UPDATE SET
			price = excluded.price,
			was_price = excluded.was_price,
			on_sale = excluded.on_sale,
			promo_text = excluded.promo_text,
			url = excluded.url`,
		uuid.New().String(),
		NormalizeName(rec.ProductName),
		rec.Retailer,
		rec.Price,
		rec.WasPrice,
		rec.OnSale,
		rec.PromoText,
		rec.URL,
		day.Format(dateLayout),
		time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: append price record %s", rec.ProductName)
}

func (s *SQLiteStore) QueryHistory(ctx context.Context, productName string, filter HistoryFilter) ([]model.PriceRecord, error) {
	query := `
		SELECT id, product_name, retailer, price, was_price, on_sale, promo_text, url, date_recorded, created_at
		FROM price_history
		WHERE product_name = ? AND date_recorded >= ?`
	args := []any{NormalizeName(productName), cutoffDate(filter.DaysBack)}

	if filter.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, filter.Retailer)
	}
	query += ` ORDER BY date_recorded ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query history")
	}
	defer rows.Close()

	var records []model.PriceRecord
	for rows.Next() {
		rec, err := scanPriceRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: query history iterate")
}

func (s *SQLiteStore) ListTrackedProducts(ctx context.Context) ([]model.ProductSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		return nil, eris.Wrap(err, "sqlite: list tracked products")
	}
	defer rows.Close()

	var products []model.ProductSummary
	for rows.Next() {
		var (
			p           model.ProductSummary
			first, last string
			lastPrice   sql.NullFloat64
			lastOnSale  sql.NullBool
		)
		if err := rows.Scan(&p.ProductName, &p.Retailer, &p.RecordCount, &first, &last, &lastPrice, &lastOnSale); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tracked product")
		}
		if p.FirstRecorded, err = time.Parse(dateLayout, first); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse first_seen")
		}
		if p.LastRecorded, err = time.Parse(dateLayout, last); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse last_seen")
		}
		if lastPrice.Valid {
			p.LastPrice = &lastPrice.Float64
		}
		p.LastOnSale = lastOnSale.Valid && lastOnSale.Bool
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list tracked products iterate")
}

func (s *SQLiteStore) DeleteProductHistory(ctx context.Context, productName, retailer string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM price_history WHERE product_name = ? AND retailer = ?`,
		NormalizeName(productName), retailer,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete history %s", productName)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: delete history rows affected")
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM price_history`,
		`DELETE FROM alternative_products`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", stmt)
		}
	}
	return nil
}

func (s *SQLiteStore) LogAlternatives(ctx context.Context, searchQuery, retailer string, day time.Time, alts []model.RankedAlternative) error {
	if searchQuery == "" || retailer == "" || len(alts) == 0 {
		return eris.New("sqlite: alternatives log needs query, retailer and rows")
	}

	normalizedQuery := NormalizeName(searchQuery)
	dateStr := day.UTC().Format(dateLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin alternatives tx")
	}
	defer tx.Rollback()

	// Replace the day's snapshot wholesale.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM alternative_products WHERE search_query = ? AND retailer = ? AND date_recorded = ?`,
		normalizedQuery, retailer, dateStr,
	); err != nil {
		return eris.Wrap(err, "sqlite: delete day alternatives")
	}

	now := time.Now().UTC()
	for i, alt := range alts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alternative_products (id, search_query, retailer, product_name, price, was_price, on_sale, promo_text, url, match_score, rank_position, date_recorded, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
			dateStr,
			now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert alternative %d", i+1)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit alternatives")
}

func (s *SQLiteStore) AlternativesFor(ctx context.Context, searchQuery string, filter HistoryFilter) ([]model.AlternativeRecord, error) {
	query := `
		SELECT id, search_query, retailer, product_name, price, was_price, on_sale, promo_text, url, match_score, rank_position, date_recorded, created_at
		FROM alternative_products
		WHERE search_query = ? AND date_recorded >= ?`
	args := []any{NormalizeName(searchQuery), cutoffDate(filter.DaysBack)}

	if filter.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, filter.Retailer)
	}
	query += ` ORDER BY date_recorded DESC, rank_position ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query alternatives")
	}
	defer rows.Close()

	var records []model.AlternativeRecord
	for rows.Next() {
		var (
			rec       model.AlternativeRecord
			price     sql.NullFloat64
			was       sql.NullFloat64
			promo     sql.NullString
			url       sql.NullString
			score     sql.NullFloat64
			dateStr   string
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.SearchQuery, &rec.Retailer, &rec.ProductName,
			&price, &was, &rec.OnSale, &promo, &url, &score, &rec.RankPosition, &dateStr, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alternative")
		}
		if price.Valid {
			rec.Price = &price.Float64
		}
		if was.Valid {
			rec.WasPrice = &was.Float64
		}
		if promo.Valid {
			rec.PromoText = &promo.String
		}
		if url.Valid {
			rec.URL = &url.String
		}
		if score.Valid {
			rec.MatchScore = score.Float64
		}
		if rec.DateRecorded, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse alternative date")
		}
		rec.CreatedAt = createdAt
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: query alternatives iterate")
}

func (s *SQLiteStore) AddFavorite(ctx context.Context, productName, retailer string) (bool, error) {
	if retailer == "" {
		retailer = "woolworths"
	}

	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM favorites WHERE product_name = ? AND retailer = ?`,
		productName, retailer,
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, eris.Wrap(err, "sqlite: check favorite")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO favorites (id, product_name, retailer, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), productName, retailer, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: add favorite %s", productName)
	}
	return true, nil
}

func (s *SQLiteStore) ListFavorites(ctx context.Context) ([]model.Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_name, retailer, created_at FROM favorites ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list favorites")
	}
	defer rows.Close()

	var favorites []model.Favorite
	for rows.Next() {
		var f model.Favorite
		if err := rows.Scan(&f.ID, &f.ProductName, &f.Retailer, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan favorite")
		}
		favorites = append(favorites, f)
	}
	return favorites, eris.Wrap(rows.Err(), "sqlite: list favorites iterate")
}

func (s *SQLiteStore) RemoveFavorite(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: remove favorite %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: remove favorite rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats          Stats
		oldest, newest sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT product_name), COUNT(DISTINCT retailer),
			MIN(date_recorded), MAX(date_recorded)
		FROM price_history`).
		Scan(&stats.PriceRecords, &stats.UniqueProducts, &stats.UniqueRetailers, &oldest, &newest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: price history stats")
	}

	if oldest.Valid {
		t, err := time.Parse(dateLayout, oldest.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse oldest record")
		}
		stats.OldestRecord = &t
	}
	if newest.Valid {
		t, err := time.Parse(dateLayout, newest.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse newest record")
		}
		stats.NewestRecord = &t
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT search_query) FROM alternative_products`).
		Scan(&stats.AlternativeRecords, &stats.UniqueQueries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: alternatives stats")
	}
	return &stats, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPriceRecord(row scannable) (*model.PriceRecord, error) {
	var (
		rec     model.PriceRecord
		price   sql.NullFloat64
		was     sql.NullFloat64
		promo   sql.NullString
		url     sql.NullString
		dateStr string
	)
	err := row.Scan(&rec.ID, &rec.ProductName, &rec.Retailer, &price, &was, &rec.OnSale, &promo, &url, &dateStr, &rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan price record")
	}
	if price.Valid {
		rec.Price = &price.Float64
	}
	if was.Valid {
		rec.WasPrice = &was.Float64
	}
	if promo.Valid {
		rec.PromoText = &promo.String
	}
	if url.Valid {
		rec.URL = &url.String
	}
	if rec.DateRecorded, err = time.Parse(dateLayout, dateStr); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse date recorded")
	}
	return &rec, nil
}
