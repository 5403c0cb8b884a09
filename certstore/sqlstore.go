package certstore

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/letsencrypt/borp"

	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/identifier"
)

// sqlRecord is the borp-mapped row shape backing SQLStore: an identifier.ID
// key and an opaque blob, mirroring Memory's key/value model exactly so
// the two Store implementations are interchangeable.
type sqlRecord struct {
	ID   []byte `db:"id"`
	Blob []byte `db:"blob"`
}

// SQLStore is the SQL-backed Store the Domain Stack names: insert/lookup/
// update against a MySQL-compatible database via go-sql-driver/mysql and
// borp, boulder's gorp fork. The cmd/ binaries select it behind
// --mysql-dsn; no test in this tree exercises it, and unit tests use Memory.
type SQLStore struct {
	dbMap *borp.DbMap
}

// NewSQLStore wraps an already-open *sql.DB. The caller owns db's
// lifecycle (open/close); NewSQLStore only maps the certstore_records
// table onto it.
func NewSQLStore(db *sql.DB) *SQLStore {
	dbMap := &borp.DbMap{Db: db, Dialect: borp.MySQLDialect{Engine: "InnoDB", Encoding: "utf8mb4"}}
	dbMap.AddTableWithName(sqlRecord{}, "certstore_records").SetKeys(false, "ID")
	return &SQLStore{dbMap: dbMap}
}

func (s *SQLStore) Insert(id identifier.ID, blob []byte) error {
	err := s.dbMap.Insert(&sqlRecord{ID: id.Bytes(), Blob: blob})
	if err != nil {
		return berrors.New(berrors.Write, "certstore: inserting record: %v", err)
	}
	return nil
}

func (s *SQLStore) Lookup(id identifier.ID) ([]byte, error) {
	obj, err := s.dbMap.Get(sqlRecord{}, id.Bytes())
	if err != nil {
		return nil, berrors.New(berrors.Read, "certstore: looking up record: %v", err)
	}
	if obj == nil {
		return nil, berrors.New(berrors.NotFound, "certstore: no record for %x", id.Bytes())
	}
	return obj.(*sqlRecord).Blob, nil
}

func (s *SQLStore) Update(id identifier.ID, blob []byte) error {
	n, err := s.dbMap.Update(&sqlRecord{ID: id.Bytes(), Blob: blob})
	if err != nil {
		return berrors.New(berrors.Write, "certstore: updating record: %v", err)
	}
	if n == 0 {
		return berrors.New(berrors.NotFound, "certstore: no record for %x", id.Bytes())
	}
	return nil
}
