/*
SQLiteFlowDB implements agreement.FlowStore.
Table is flow_db

Internally,

1) Zero hashes and signatures are stored as NULL and restored as zero values.
2) Timestamps are stored as unix milliseconds.
3) An upsert never changes CreatedAt of an existing row.
*/
package flowdb

import (
	"database/sql"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/database"
)

var _ agreement.FlowStore = (*SQLiteFlowDB)(nil)

type SQLiteFlowDB struct {
	db    *sql.DB
	stmts *database.StmtCache

	// Now is replaced in tests.
	Now func() time.Time
}

func NewSQLiteFlowDB(dbPath string) (*SQLiteFlowDB, error) {
	db, err := database.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	storage := &SQLiteFlowDB{db: db, stmts: database.NewStmtCache(db), Now: time.Now}
	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// Table's row structure is according to agreement.FlowRecord
func (s *SQLiteFlowDB) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS flow_db (
		RequestId BLOB PRIMARY KEY,
		Direction TEXT NOT NULL,
		State TEXT NOT NULL,
		EvmTxHash BLOB,
		LedgerTxSig BLOB,
		Error TEXT NOT NULL DEFAULT '',
		CreatedAt INTEGER NOT NULL,
		UpdatedAt INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flow_state ON flow_db (State);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteFlowDB) Close() error {
	s.stmts.Clear()
	return s.db.Close()
}

// Upsert inserts rec or overwrites the stored record with the same request
// id. CreatedAt and UpdatedAt are filled in when zero.
func (s *SQLiteFlowDB) Upsert(rec *agreement.FlowRecord) error {
	query := `
	INSERT INTO flow_db (RequestId, Direction, State, EvmTxHash, LedgerTxSig, Error, CreatedAt, UpdatedAt)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(RequestId) DO UPDATE SET
		Direction = excluded.Direction,
		State = excluded.State,
		EvmTxHash = excluded.EvmTxHash,
		LedgerTxSig = excluded.LedgerTxSig,
		Error = excluded.Error,
		UpdatedAt = excluded.UpdatedAt;
	`
	stmt, err := s.stmts.Prepare(query)
	if err != nil {
		return err
	}

	now := s.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	var evmTxHash, ledgerTxSig []byte
	if rec.EvmTxHash != (common.Hash{}) {
		evmTxHash = rec.EvmTxHash.Bytes()
	}
	if rec.LedgerTxSig != (solana.Signature{}) {
		ledgerTxSig = rec.LedgerTxSig[:]
	}

	_, err = stmt.Exec(
		rec.RequestId[:],
		string(rec.Direction),
		string(rec.State),
		evmTxHash,
		ledgerTxSig,
		rec.Error,
		rec.CreatedAt.UnixMilli(),
		rec.UpdatedAt.UnixMilli(),
	)
	return err
}

const selectColumns = `SELECT RequestId, Direction, State, EvmTxHash, LedgerTxSig, Error, CreatedAt, UpdatedAt FROM flow_db`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*agreement.FlowRecord, error) {
	var (
		reqId, evmTxHash, ledgerTxSig []byte
		direction, state              string
		createdAt, updatedAt          int64
	)
	rec := &agreement.FlowRecord{}
	if err := row.Scan(&reqId, &direction, &state, &evmTxHash, &ledgerTxSig, &rec.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	copy(rec.RequestId[:], reqId)
	rec.Direction = agreement.Direction(direction)
	rec.State = agreement.FlowState(state)
	if len(evmTxHash) > 0 {
		rec.EvmTxHash = common.BytesToHash(evmTxHash)
	}
	if len(ledgerTxSig) > 0 {
		copy(rec.LedgerTxSig[:], ledgerTxSig)
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return rec, nil
}

// Get returns nil without error when the request id is unknown.
func (s *SQLiteFlowDB) Get(requestId [32]byte) (*agreement.FlowRecord, error) {
	stmt, err := s.stmts.Prepare(selectColumns + ` WHERE RequestId = ?;`)
	if err != nil {
		return nil, err
	}

	rec, err := scanRecord(stmt.QueryRow(requestId[:]))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteFlowDB) GetByState(state agreement.FlowState) ([]*agreement.FlowRecord, error) {
	return s.GetByStates([]agreement.FlowState{state})
}

// GetByStates returns records in any of the given states, oldest first.
func (s *SQLiteFlowDB) GetByStates(states []agreement.FlowState) ([]*agreement.FlowRecord, error) {
	if len(states) == 0 {
		return nil, nil
	}
	query := selectColumns + ` WHERE State IN (?` + strings.Repeat(", ?", len(states)-1) + `) ORDER BY CreatedAt;`
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*agreement.FlowRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteFlowDB) Delete(requestId [32]byte) error {
	stmt, err := s.stmts.Prepare(`DELETE FROM flow_db WHERE RequestId = ?;`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(requestId[:])
	return err
}
