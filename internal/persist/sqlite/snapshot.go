package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/budget"
	"github.com/w3c/attribution/internal/domain"
	"github.com/w3c/attribution/internal/engine"
)

// Store persists engine.Snapshot values to a SQLite file.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path and runs
// pending migrations.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := NewMigrationRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save overwrites the snapshot tables with the given engine.Snapshot,
// inside a single transaction.
func (s *Store) Save(snap engine.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM impressions"); err != nil {
		return err
	}
	for _, imp := range snap.Impressions {
		if _, err := tx.Exec(
			`INSERT INTO impressions
			(id, impression_site, intermediary_site, conversion_sites, conversion_callers,
			 match_value, timestamp_unix, lifetime_seconds, histogram_index, priority)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			imp.ID.String(), string(imp.ImpressionSite), string(imp.IntermediarySite),
			joinSites(imp.ConversionSites), joinSites(imp.ConversionCallers),
			imp.MatchValue, imp.Timestamp.Unix(), int64(imp.Lifetime.Seconds()),
			imp.HistogramIndex, imp.Priority,
		); err != nil {
			return fmt.Errorf("insert impression: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM budget_entries"); err != nil {
		return err
	}
	for key, micro := range snap.BudgetEntries {
		if _, err := tx.Exec(
			`INSERT INTO budget_entries (site, epoch, micro_epsilons) VALUES (?, ?, ?)`,
			string(key.Site), key.Epoch, micro,
		); err != nil {
			return fmt.Errorf("insert budget entry: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM epoch_origins"); err != nil {
		return err
	}
	for site, origin := range snap.EpochOrigins {
		if _, err := tx.Exec(
			`INSERT INTO epoch_origins (site, origin_unix_nano) VALUES (?, ?)`,
			string(site), origin.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert epoch origin: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM global_state"); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO global_state (key, value) VALUES ('enabled', ?)`, strconv.FormatBool(snap.Enabled)); err != nil {
		return err
	}
	if snap.LastBrowsingHistoryClear != nil {
		if _, err := tx.Exec(
			`INSERT INTO global_state (key, value) VALUES ('last_browsing_history_clear', ?)`,
			strconv.FormatInt(snap.LastBrowsingHistoryClear.UnixNano(), 10),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads a previously Save'd snapshot. Returns a snapshot with Enabled
// true, no impressions and empty maps, and no error, if the database has
// never been written to (fresh install).
func (s *Store) Load() (engine.Snapshot, error) {
	var snap engine.Snapshot

	rows, err := s.db.Query(`
		SELECT id, impression_site, intermediary_site, conversion_sites, conversion_callers,
		       match_value, timestamp_unix, lifetime_seconds, histogram_index, priority
		FROM impressions`)
	if err != nil {
		return snap, fmt.Errorf("query impressions: %w", err)
	}
	for rows.Next() {
		var (
			id, impSite, interSite, convSites, convCallers string
			matchValue                                     uint64
			tsUnix, lifetimeSeconds                         int64
			histIndex                                       int
			priority                                        int32
		)
		if err := rows.Scan(&id, &impSite, &interSite, &convSites, &convCallers,
			&matchValue, &tsUnix, &lifetimeSeconds, &histIndex, &priority); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan impression: %w", err)
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			rows.Close()
			return snap, fmt.Errorf("parse impression id: %w", err)
		}
		snap.Impressions = append(snap.Impressions, &domain.Impression{
			ID:                parsedID,
			ImpressionSite:    domain.Site(impSite),
			IntermediarySite:  domain.Site(interSite),
			ConversionSites:   splitSites(convSites),
			ConversionCallers: splitSites(convCallers),
			MatchValue:        matchValue,
			Timestamp:         time.Unix(tsUnix, 0).UTC(),
			Lifetime:          time.Duration(lifetimeSeconds) * time.Second,
			HistogramIndex:    histIndex,
			Priority:          priority,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return snap, err
	}
	rows.Close()

	budgetRows, err := s.db.Query(`SELECT site, epoch, micro_epsilons FROM budget_entries`)
	if err != nil {
		return snap, fmt.Errorf("query budget entries: %w", err)
	}
	snap.BudgetEntries = make(map[budget.Key]uint64)
	for budgetRows.Next() {
		var site string
		var epoch int64
		var micro uint64
		if err := budgetRows.Scan(&site, &epoch, &micro); err != nil {
			budgetRows.Close()
			return snap, fmt.Errorf("scan budget entry: %w", err)
		}
		snap.BudgetEntries[budget.Key{Site: domain.Site(site), Epoch: epoch}] = micro
	}
	if err := budgetRows.Err(); err != nil {
		budgetRows.Close()
		return snap, err
	}
	budgetRows.Close()

	originRows, err := s.db.Query(`SELECT site, origin_unix_nano FROM epoch_origins`)
	if err != nil {
		return snap, fmt.Errorf("query epoch origins: %w", err)
	}
	snap.EpochOrigins = make(map[domain.Site]time.Time)
	for originRows.Next() {
		var site string
		var nanos int64
		if err := originRows.Scan(&site, &nanos); err != nil {
			originRows.Close()
			return snap, fmt.Errorf("scan epoch origin: %w", err)
		}
		snap.EpochOrigins[domain.Site(site)] = time.Unix(0, nanos).UTC()
	}
	if err := originRows.Err(); err != nil {
		originRows.Close()
		return snap, err
	}
	originRows.Close()

	snap.Enabled = true
	stateRows, err := s.db.Query(`SELECT key, value FROM global_state`)
	if err != nil {
		return snap, fmt.Errorf("query global state: %w", err)
	}
	for stateRows.Next() {
		var key, value string
		if err := stateRows.Scan(&key, &value); err != nil {
			stateRows.Close()
			return snap, fmt.Errorf("scan global state: %w", err)
		}
		switch key {
		case "enabled":
			snap.Enabled, _ = strconv.ParseBool(value)
		case "last_browsing_history_clear":
			nanos, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				stateRows.Close()
				return snap, fmt.Errorf("parse last_browsing_history_clear: %w", err)
			}
			t := time.Unix(0, nanos).UTC()
			snap.LastBrowsingHistoryClear = &t
		}
	}
	if err := stateRows.Err(); err != nil {
		stateRows.Close()
		return snap, err
	}
	stateRows.Close()

	return snap, nil
}

func joinSites(set map[domain.Site]struct{}) string {
	sites := make([]string, 0, len(set))
	for s := range set {
		sites = append(sites, string(s))
	}
	return strings.Join(sites, ",")
}

func splitSites(joined string) map[domain.Site]struct{} {
	set := make(map[domain.Site]struct{})
	if joined == "" {
		return set
	}
	for _, s := range strings.Split(joined, ",") {
		set[domain.Site(s)] = struct{}{}
	}
	return set
}
