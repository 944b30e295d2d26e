// Package history loads historical fund prices and turns them into the
// return matrix and category map consumed by the optimizer.
package history

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
)

// minHistoryRows is the minimum number of price rows needed before a return
// matrix is considered usable.
const minHistoryRows = 30

// Repository reads fund metadata and daily prices.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}
}

// InitSchema creates the history tables when missing.
func (r *Repository) InitSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS funds (
			symbol   TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// UpsertFund records a fund and its category.
func (r *Repository) UpsertFund(symbol, category string) error {
	_, err := r.db.Exec(`
		INSERT INTO funds (symbol, category) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET category = excluded.category
	`, symbol, category)
	if err != nil {
		return fmt.Errorf("failed to upsert fund %s: %w", symbol, err)
	}
	return nil
}

// InsertDailyPrice records one close price.
func (r *Repository) InsertDailyPrice(symbol, date string, closePrice float64) error {
	_, err := r.db.Exec(`
		INSERT INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
	`, symbol, date, closePrice)
	if err != nil {
		return fmt.Errorf("failed to insert price for %s: %w", symbol, err)
	}
	return nil
}

// ListFunds returns all fund symbols, sorted.
func (r *Repository) ListFunds() ([]string, error) {
	rows, err := r.db.Query(`SELECT symbol FROM funds ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list funds: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan fund row: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// LoadCategories returns the fund-to-category map. Funds with an empty
// category are omitted so the optimizer places them in its Unknown bucket.
func (r *Repository) LoadCategories() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT symbol, category FROM funds WHERE category != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	categories := make(map[string]string)
	for rows.Next() {
		var symbol, category string
		if err := rows.Scan(&symbol, &category); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories[symbol] = category
	}
	return categories, rows.Err()
}

// LoadReturnMatrix fetches daily closes for the symbols over the lookback
// window, fills gaps by forward- then back-filling, and converts prices to
// daily fractional returns in chronological order.
func (r *Repository) LoadReturnMatrix(symbols []string, lookbackDays int) (optimizer.ReturnMatrix, error) {
	if len(symbols) == 0 {
		return optimizer.ReturnMatrix{}, fmt.Errorf("no symbols provided")
	}

	startDate := time.Now().AddDate(0, 0, -lookbackDays).Format("2006-01-02")

	query := `
		SELECT symbol, date, close
		FROM daily_prices
		WHERE symbol IN (` + placeholders(len(symbols)) + `)
			AND date >= ?
		ORDER BY date ASC
	`
	args := make([]interface{}, 0, len(symbols)+1)
	for _, symbol := range symbols {
		args = append(args, symbol)
	}
	args = append(args, startDate)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return optimizer.ReturnMatrix{}, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	pricesBySymbol := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)
	for rows.Next() {
		var symbol, date string
		var price float64
		if err := rows.Scan(&symbol, &date, &price); err != nil {
			return optimizer.ReturnMatrix{}, fmt.Errorf("failed to scan price row: %w", err)
		}
		if pricesBySymbol[symbol] == nil {
			pricesBySymbol[symbol] = make(map[string]float64)
		}
		pricesBySymbol[symbol][date] = price
		dateSet[date] = true
	}
	if err := rows.Err(); err != nil {
		return optimizer.ReturnMatrix{}, fmt.Errorf("error iterating price rows: %w", err)
	}

	dates := make([]string, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	if len(dates) < minHistoryRows {
		return optimizer.ReturnMatrix{}, fmt.Errorf(
			"insufficient price history: only %d days available (need at least %d)", len(dates), minHistoryRows)
	}

	// Price grid: NaN marks missing observations before filling.
	prices := make([][]float64, len(symbols))
	missing := 0
	for j, symbol := range symbols {
		series := make([]float64, len(dates))
		for i, date := range dates {
			if p, ok := pricesBySymbol[symbol][date]; ok {
				series[i] = p
			} else {
				series[i] = math.NaN()
				missing++
			}
		}
		fillGaps(series)
		prices[j] = series
	}
	if missing > 0 {
		r.log.Warn().
			Int("missing_data_points", missing).
			Msg("Filled missing price data")
	}

	matrix := optimizer.ReturnMatrix{
		Dates:   dates[1:],
		Symbols: symbols,
		Rows:    make([][]float64, len(dates)-1),
	}
	for i := 1; i < len(dates); i++ {
		row := make([]float64, len(symbols))
		for j := range symbols {
			prev, cur := prices[j][i-1], prices[j][i]
			if prev > 0 && !math.IsNaN(prev) && !math.IsNaN(cur) {
				row[j] = (cur - prev) / prev
			}
		}
		matrix.Rows[i-1] = row
	}

	r.log.Debug().
		Int("num_dates", len(dates)).
		Int("num_symbols", len(symbols)).
		Msg("Built return matrix from price history")

	return matrix, nil
}

// fillGaps forward-fills missing values, then back-fills leading gaps.
func fillGaps(series []float64) {
	var lastValid float64
	hasLastValid := false
	for i := range series {
		if math.IsNaN(series[i]) {
			if hasLastValid {
				series[i] = lastValid
			}
		} else {
			lastValid = series[i]
			hasLastValid = true
		}
	}

	var nextValid float64
	hasNextValid := false
	for i := len(series) - 1; i >= 0; i-- {
		if math.IsNaN(series[i]) {
			if hasNextValid {
				series[i] = nextValid
			}
		} else {
			nextValid = series[i]
			hasNextValid = true
		}
	}
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
