package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/baxromumarov/job-ingest/internal/dedup"
	"github.com/baxromumarov/job-ingest/internal/scraper"
)

type companyRecord struct {
	Key     string
	ID      int64
	Name    string
	Website string
}

type jobRecord struct {
	Fingerprint string
	CompanyID   int64
	Job         scraper.NormalizedJob
	PostedUnix  int64
	CreatedAt   time.Time
}

// BadgerStore is an embedded Gateway backed by badgerhold.
type BadgerStore struct {
	store *badgerhold.Store
	seq   *badger.Sequence
	now   func() time.Time
}

var _ Gateway = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the database at path. An empty path keeps
// everything in memory.
func OpenBadger(path string) (*BadgerStore, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil
	if path == "" {
		options.InMemory = true
		options.Dir = ""
		options.ValueDir = ""
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}

	hs, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	seq, err := hs.Badger().GetSequence([]byte("seq:company"), 64)
	if err != nil {
		hs.Close()
		return nil, fmt.Errorf("failed to open company sequence: %w", err)
	}
	return &BadgerStore{store: hs, seq: seq, now: time.Now}, nil
}

func (b *BadgerStore) UpsertCompany(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapErr("upsert company", err)
	}
	var id int64
	err := b.store.Badger().Update(func(tx *badger.Txn) error {
		var err error
		id, err = b.companyTx(tx, name)
		return err
	})
	return id, wrapErr("upsert company", err)
}

func (b *BadgerStore) companyTx(tx *badger.Txn, name string) (int64, error) {
	key := companyKey(name)
	var existing companyRecord
	err := b.store.TxGet(tx, key, &existing)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return 0, err
	}

	next, err := b.seq.Next()
	if err != nil {
		return 0, err
	}
	rec := companyRecord{Key: key, ID: int64(next) + 1, Name: name, Website: CompanyWebsite(name)}
	if err := b.store.TxInsert(tx, key, &rec); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (b *BadgerStore) UpsertJobs(ctx context.Context, jobs []scraper.NormalizedJob) (UpsertResult, error) {
	var res UpsertResult
	if len(jobs) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, wrapErr("upsert jobs", err)
	}

	now := b.now()
	err := b.store.Badger().Update(func(tx *badger.Txn) error {
		res = UpsertResult{}
		for _, j := range jobs {
			fp := string(dedup.FingerprintOf(j))
			var existing jobRecord
			err := b.store.TxGet(tx, fp, &existing)
			if err == nil {
				res.Skipped++
				continue
			}
			if !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}

			companyID, err := b.companyTx(tx, j.CompanyName)
			if err != nil {
				return err
			}
			rec := jobRecord{
				Fingerprint: fp,
				CompanyID:   companyID,
				Job:         j,
				PostedUnix:  j.PostedAt.UnixNano(),
				CreatedAt:   now,
			}
			if err := b.store.TxInsert(tx, fp, &rec); err != nil {
				return err
			}
			res.Created++
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, wrapErr("upsert jobs", err)
	}
	return res, nil
}

func (b *BadgerStore) KnownFingerprints(ctx context.Context) ([]dedup.Fingerprint, error) {
	var recs []jobRecord
	if err := b.store.Find(&recs, nil); err != nil {
		return nil, wrapErr("known fingerprints", err)
	}
	fps := make([]dedup.Fingerprint, 0, len(recs))
	for _, r := range recs {
		fps = append(fps, dedup.Fingerprint(r.Fingerprint))
	}
	return fps, nil
}

func (b *BadgerStore) DeleteOlderThan(ctx context.Context, ageDays int) (int64, error) {
	if ageDays <= 0 {
		return 0, wrapErr("delete old jobs", ErrInvalidAge)
	}
	cutoff := Cutoff(b.now(), ageDays).UnixNano()

	var deleted int64
	err := b.store.Badger().Update(func(tx *badger.Txn) error {
		var old []jobRecord
		if err := b.store.TxFind(tx, &old, badgerhold.Where("PostedUnix").Lt(cutoff)); err != nil {
			return err
		}
		for _, r := range old {
			if err := b.store.TxDelete(tx, r.Fingerprint, jobRecord{}); err != nil {
				return err
			}
		}
		deleted = int64(len(old))
		return nil
	})
	if err != nil {
		return 0, wrapErr("delete old jobs", err)
	}
	return deleted, nil
}

func (b *BadgerStore) CountJobs(ctx context.Context) (int64, error) {
	n, err := b.store.Count(&jobRecord{}, nil)
	return int64(n), wrapErr("count jobs", err)
}

func (b *BadgerStore) Close() error {
	if b.seq != nil {
		b.seq.Release()
	}
	return b.store.Close()
}
