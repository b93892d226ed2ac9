package telemetry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/blackknights-robotics/motioncore/internal/httputil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// scalarIdx marks a sample row that holds a scalar rather than an array
// element.
const scalarIdx = -1

// Archive is the sqlite store behind Recorder. Each recording session is a
// run; samples are rows of (run, seq, t, key, idx, value).
type Archive struct {
	db   *sql.DB
	path string
}

// Run describes one recording session.
type Run struct {
	ID        string    `json:"run_id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
	Samples   int       `json:"samples"`
}

// Point is one scalar sample.
type Point struct {
	T     float64
	Value float64
}

// ArrayPoint is one array sample.
type ArrayPoint struct {
	T      float64
	Values []float64
}

// OpenArchive opens or creates the database at path and brings its schema up
// to date.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db %s: %w", path, err)
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under the flusher.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure telemetry db: %w", err)
	}
	a := &Archive{db: db, path: path}
	if err := a.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(a.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	// m is not closed: that would close the shared connection.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) createRun(id, label string, started time.Time) error {
	_, err := a.db.Exec(`INSERT INTO runs (run_id, label, started_ns) VALUES (?, ?, ?)`,
		id, label, started.UnixNano())
	if err != nil {
		return fmt.Errorf("create run %s: %w", id, err)
	}
	return nil
}

// Runs lists recording sessions, newest first.
func (a *Archive) Runs() ([]Run, error) {
	rows, err := a.db.Query(`
		SELECT r.run_id, r.label, r.started_ns, COUNT(DISTINCT s.seq)
		FROM runs r LEFT JOIN samples s ON s.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_ns DESC, r.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Label, &started, &r.Samples); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Keys lists the keys recorded in a run.
func (a *Archive) Keys(runID string) ([]string, error) {
	rows, err := a.db.Query(`SELECT DISTINCT key FROM samples WHERE run_id = ? ORDER BY key`, runID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Series returns the scalar samples of key in a run, oldest first.
func (a *Archive) Series(runID, key string) ([]Point, error) {
	rows, err := a.db.Query(`
		SELECT t, value FROM samples
		WHERE run_id = ? AND key = ? AND idx = ?
		ORDER BY seq`, runID, key, scalarIdx)
	if err != nil {
		return nil, fmt.Errorf("query series %s: %w", key, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		var v sql.NullFloat64
		if err := rows.Scan(&p.T, &v); err != nil {
			return nil, fmt.Errorf("scan series %s: %w", key, err)
		}
		p.Value = nullToNaN(v)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ArraySeries returns the array samples of key in a run, oldest first.
func (a *Archive) ArraySeries(runID, key string) ([]ArrayPoint, error) {
	rows, err := a.db.Query(`
		SELECT seq, t, value FROM samples
		WHERE run_id = ? AND key = ? AND idx >= 0
		ORDER BY seq, idx`, runID, key)
	if err != nil {
		return nil, fmt.Errorf("query array series %s: %w", key, err)
	}
	defer rows.Close()

	var out []ArrayPoint
	lastSeq := int64(-1)
	for rows.Next() {
		var seq int64
		var t float64
		var v sql.NullFloat64
		if err := rows.Scan(&seq, &t, &v); err != nil {
			return nil, fmt.Errorf("scan array series %s: %w", key, err)
		}
		if seq != lastSeq {
			out = append(out, ArrayPoint{T: t})
			lastSeq = seq
		}
		last := &out[len(out)-1]
		last.Values = append(last.Values, nullToNaN(v))
	}
	return out, rows.Err()
}

// sqlite stores NaN as NULL.
func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// AttachAdminRoutes mounts tailsql over the archive and a run listing on the
// tsweb debug mux.
func (a *Archive) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+a.path, a.db, &tailsql.DBOptions{
		Label: "Telemetry DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("telemetry-runs", "recorded telemetry runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := a.Runs()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, runs)
	})
	return nil
}
