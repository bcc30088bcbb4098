package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

//go:embed schema.sql
var schemaSQL string

// Store is the Postgres-backed Gateway.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ Gateway = (*Store)(nil)

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations applies the schema at schemaPath, or the embedded schema when
// schemaPath is empty.
func (s *Store) RunMigrations(schemaPath string) error {
	content := schemaSQL
	if schemaPath != "" {
		b, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		content = string(b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) UpsertCompany(ctx context.Context, name string) (int64, error) {
	id, err := upsertCompany(ctx, s.db, name)
	return id, wrapErr("upsert company", err)
}

func upsertCompany(ctx context.Context, q execQuerier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
INSERT INTO companies (name, name_key, website, description)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name_key) DO UPDATE SET updated_at = NOW()
RETURNING id
`, name, companyKey(name), CompanyWebsite(name), "Company offering positions listed on job boards").Scan(&id)
	return id, err
}

// UpsertJobs inserts the batch in one transaction. Rows whose fingerprint is
// already stored are left untouched and counted as skipped.
func (s *Store) UpsertJobs(ctx context.Context, jobs []scraper.NormalizedJob) (UpsertResult, error) {
	var res UpsertResult
	if len(jobs) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, wrapErr("begin tx", err)
	}
	defer tx.Rollback()

	companies := map[string]int64{}
	for _, j := range jobs {
		key := companyKey(j.CompanyName)
		companyID, ok := companies[key]
		if !ok {
			companyID, err = upsertCompany(ctx, tx, j.CompanyName)
			if err != nil {
				return UpsertResult{}, wrapErr("upsert company", err)
			}
			companies[key] = companyID
		}

		var salaryMin, salaryMax sql.NullInt64
		var currency sql.NullString
		if j.Salary != nil {
			salaryMin = sql.NullInt64{Int64: int64(j.Salary.Min), Valid: j.Salary.Min > 0}
			salaryMax = sql.NullInt64{Int64: int64(j.Salary.Max), Valid: j.Salary.Max > 0}
			currency = sql.NullString{String: j.Salary.Currency, Valid: j.Salary.Currency != ""}
		}
		var postedAt sql.NullTime
		if !j.PostedAt.IsZero() {
			postedAt = sql.NullTime{Time: j.PostedAt, Valid: true}
		}
		tags := j.Tags
		if tags == nil {
			tags = []string{}
		}

		r, err := tx.ExecContext(ctx, `
INSERT INTO jobs (fingerprint, source, source_id, company_id, company_name, title, description, location,
    salary_min, salary_max, salary_currency, job_type, remote_type, experience_level, tags, url, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (fingerprint) DO NOTHING
`,
			string(dedup.FingerprintOf(j)), string(j.Source), j.SourceID, companyID, j.CompanyName, j.Title,
			j.Description, j.Location, salaryMin, salaryMax, currency, j.JobType, j.RemoteType,
			j.ExperienceLevel, pq.Array(tags), j.URL, postedAt,
		)
		if err != nil {
			return UpsertResult{}, wrapErr("insert job", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return UpsertResult{}, wrapErr("insert job", err)
		}
		if n > 0 {
			res.Created++
		} else {
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, wrapErr("commit", err)
	}
	return res, nil
}

func (s *Store) KnownFingerprints(ctx context.Context) ([]dedup.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint FROM jobs`)
	if err != nil {
		return nil, wrapErr("known fingerprints", err)
	}
	defer rows.Close()

	var fps []dedup.Fingerprint
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, wrapErr("known fingerprints", err)
		}
		fps = append(fps, dedup.Fingerprint(fp))
	}
	return fps, wrapErr("known fingerprints", rows.Err())
}

func (s *Store) DeleteOlderThan(ctx context.Context, ageDays int) (int64, error) {
	if ageDays <= 0 {
		return 0, wrapErr("delete old jobs", ErrInvalidAge)
	}
	cutoff := Cutoff(s.now(), ageDays)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE COALESCE(posted_at, created_at) < $1
`, cutoff)
	if err != nil {
		return 0, wrapErr("delete old jobs", err)
	}
	n, err := res.RowsAffected()
	return n, wrapErr("delete old jobs", err)
}

func (s *Store) CountJobs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, wrapErr("count jobs", err)
}
