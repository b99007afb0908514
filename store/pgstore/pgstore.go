// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pgstore implements store.Store on PostgreSQL through a pgx
// connection pool.
package pgstore

import (
	"context"
	"time"

	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied by Open. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            BIGINT PRIMARY KEY,
	project_id    BIGINT NOT NULL DEFAULT 0,
	checksum      TEXT NOT NULL DEFAULT '',
	content_ref   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	enc_scheme    TEXT NOT NULL DEFAULT '',
	key_version   INTEGER NOT NULL DEFAULT 0,
	wrapped_key   TEXT NOT NULL DEFAULT '',
	kdf_salt      TEXT NOT NULL DEFAULT '',
	chunk_size    INTEGER NOT NULL DEFAULT 0,
	recovered_ref TEXT NOT NULL DEFAULT '',
	CONSTRAINT one_key_material CHECK (enc_scheme = '' OR ((wrapped_key = '') <> (kdf_salt = '')))
);
CREATE TABLE IF NOT EXISTS ledger_transactions (
	id              BIGSERIAL PRIMARY KEY,
	document_id     BIGINT NOT NULL REFERENCES documents(id),
	method          TEXT NOT NULL DEFAULT '',
	tx_hash         TEXT NOT NULL,
	anchor_batch_id TEXT NOT NULL DEFAULT '',
	block_number    BIGINT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_transactions_document ON ledger_transactions (document_id, id);
CREATE INDEX IF NOT EXISTS ledger_transactions_pending ON ledger_transactions (id) WHERE block_number IS NULL;
`

const (
	documentColumns = `id, project_id, checksum, content_ref, status, enc_scheme, key_version, wrapped_key, kdf_salt, chunk_size, recovered_ref`
	txColumns       = `id, document_id, method, tx_hash, anchor_batch_id, block_number, created_at, updated_at`
)

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to the database at dsn and applies Schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.E(errors.NotConfigured, "database url")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.E(errors.Invalid, "parsing database url", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.E(errors.Unavailable, "connecting to database", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, errors.E(errors.Unavailable, "applying schema", err)
	}
	return &Store{pool: pool}, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanDocument(r row) (store.Document, error) {
	var d store.Document
	err := r.Scan(&d.ID, &d.ProjectID, &d.Checksum, &d.ContentRef, &d.Status,
		&d.EncScheme, &d.KeyVersion, &d.WrappedKey, &d.KDFSalt, &d.ChunkSize, &d.RecoveredRef)
	return d, err
}

func scanTransaction(r row) (store.Transaction, error) {
	var t store.Transaction
	err := r.Scan(&t.ID, &t.DocumentID, &t.Method, &t.TxHash, &t.BatchID, &t.BlockNumber, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Document implements store.Store.
func (s *Store) Document(ctx context.Context, id int64) (store.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
	if err == pgx.ErrNoRows {
		return store.Document{}, store.NoDocument(id)
	}
	if err != nil {
		return store.Document{}, errors.E("reading document", err)
	}
	return d, nil
}

// PutDocument implements store.Store.
func (s *Store) PutDocument(ctx context.Context, d store.Document) error {
	if d.Status == "" {
		d.Status = store.StatusPending
	}
	if err := store.CheckStatus(d.Status); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents(id, project_id, checksum, content_ref, status) VALUES($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET project_id=EXCLUDED.project_id, checksum=EXCLUDED.checksum,
	content_ref=EXCLUDED.content_ref, status=EXCLUDED.status`,
		d.ID, d.ProjectID, d.Checksum, d.ContentRef, d.Status)
	if err != nil {
		return errors.E("writing document", err)
	}
	return nil
}

func (s *Store) updateDocument(ctx context.Context, id int64, query string, arg any) error {
	tag, err := s.pool.Exec(ctx, query, id, arg)
	if err != nil {
		return errors.E("updating document", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NoDocument(id)
	}
	return nil
}

// SetStatus implements store.Store.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	if err := store.CheckStatus(status); err != nil {
		return err
	}
	return s.updateDocument(ctx, id, `UPDATE documents SET status=$2 WHERE id=$1`, status)
}

// SetRecoveredRef implements store.Store.
func (s *Store) SetRecoveredRef(ctx context.Context, id int64, ref string) error {
	return s.updateDocument(ctx, id, `UPDATE documents SET recovered_ref=$2 WHERE id=$1`, ref)
}

const insertTransaction = `INSERT INTO ledger_transactions(document_id, method, tx_hash, anchor_batch_id, block_number)
VALUES($1,$2,$3,$4,$5) RETURNING ` + txColumns

func insert(ctx context.Context, tx pgx.Tx, t store.Transaction) (store.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, insertTransaction, t.DocumentID, t.Method, t.TxHash, t.BatchID, t.BlockNumber))
}

// RecordTransaction implements store.Store.
func (s *Store) RecordTransaction(ctx context.Context, t store.Transaction) (store.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Transaction{}, errors.E(errors.Unavailable, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id=$1)`, t.DocumentID).Scan(&exists); err != nil {
		return store.Transaction{}, errors.E("reading document", err)
	}
	if !exists {
		return store.Transaction{}, store.NoDocument(t.DocumentID)
	}
	t, err = insert(ctx, tx, t)
	if err != nil {
		return store.Transaction{}, errors.E("recording transaction", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Transaction{}, errors.E("committing transaction record", err)
	}
	return t, nil
}

// CompleteAnchoring implements store.Store. The document row is locked
// for the duration so concurrent completions serialize and the second
// one observes the first one's metadata.
func (s *Store) CompleteAnchoring(ctx context.Context, docID int64, a store.Anchoring, t store.Transaction) (store.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Transaction{}, errors.E(errors.Unavailable, "beginning transaction", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck
	d, err := scanDocument(tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, docID))
	if err == pgx.ErrNoRows {
		return store.Transaction{}, store.NoDocument(docID)
	}
	if err != nil {
		return store.Transaction{}, errors.E("reading document", err)
	}
	if d, err = a.Apply(d); err != nil {
		return store.Transaction{}, err
	}
	_, err = tx.Exec(ctx, `UPDATE documents SET enc_scheme=$2, key_version=$3, wrapped_key=$4, kdf_salt=$5, chunk_size=$6 WHERE id=$1`,
		docID, d.EncScheme, d.KeyVersion, d.WrappedKey, d.KDFSalt, d.ChunkSize)
	if err != nil {
		return store.Transaction{}, errors.E("writing anchoring metadata", err)
	}
	t.DocumentID = docID
	if t, err = insert(ctx, tx, t); err != nil {
		return store.Transaction{}, errors.E("recording transaction", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Transaction{}, errors.E("committing anchoring", err)
	}
	return t, nil
}

// SetBlockNumber implements store.Store.
func (s *Store) SetBlockNumber(ctx context.Context, txID int64, block int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ledger_transactions SET block_number=$2, updated_at=now() WHERE id=$1 AND block_number IS NULL`, txID, block)
	if err != nil {
		return errors.E("setting block number", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var have *int64
	err = s.pool.QueryRow(ctx, `SELECT block_number FROM ledger_transactions WHERE id=$1`, txID).Scan(&have)
	if err == pgx.ErrNoRows {
		return store.NoTransaction(txID)
	}
	if err != nil {
		return errors.E("reading transaction", err)
	}
	if have != nil && *have != block {
		return store.BlockConflict(txID, *have, block)
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]store.Transaction, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.E("listing transactions", err)
	}
	defer rows.Close()
	var out []store.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.E("listing transactions", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E("listing transactions", err)
	}
	return out, nil
}

// Transactions implements store.Store.
func (s *Store) Transactions(ctx context.Context, docID int64) ([]store.Transaction, error) {
	return s.query(ctx, `SELECT `+txColumns+` FROM ledger_transactions WHERE document_id=$1 ORDER BY id`, docID)
}

// PendingTransactions implements store.Store.
func (s *Store) PendingTransactions(ctx context.Context) ([]store.Transaction, error) {
	return s.query(ctx, `SELECT `+txColumns+` FROM ledger_transactions WHERE block_number IS NULL ORDER BY id`)
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
