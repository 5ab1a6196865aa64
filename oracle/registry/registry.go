// Package registry persists which duty indices every known oracle holds.
package registry

import (
	"bytes"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	dbm "github.com/tendermint/tm-db"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

const dbName = "registry"

// Store keeps one record per oracle address. Writes are serialized; every write replaces
// a whole record atomically, so readers never see a partial one.
type Store struct {
	db        dbm.DB
	writeLock sync.Mutex
}

// Open opens (or creates) the goleveldb-backed registry under dir.
func Open(dir string) (*Store, error) {
	db, err := dbm.NewDB(dbName, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrStorage, "open %s: %v", dir, err)
	}

	return New(db), nil
}

// New wraps an already opened database.
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutFunc writes one record.
type PutFunc func(oracle types.Oracle) error

// Put stores or overwrites the record for oracle.Address.
func (s *Store) Put(oracle types.Oracle) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	return s.put(oracle)
}

// Exclusive runs fn as the only writer. Put calls made while fn runs wait and land
// after every record fn wrote.
func (s *Store) Exclusive(fn func(put PutFunc) error) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	return fn(s.put)
}

func (s *Store) put(oracle types.Oracle) error {
	bz, err := rlp.EncodeToBytes(oracle)
	if err != nil {
		return errorsmod.Wrapf(types.ErrStorage, "encode %s: %v", oracle.Address.Hex(), err)
	}

	if err := s.db.SetSync(GetOracleKey(oracle.Address), bz); err != nil {
		return errorsmod.Wrapf(types.ErrStorage, "put %s: %v", oracle.Address.Hex(), err)
	}

	metrics.IncrCounter(types.MetricRegistryPut, 1)
	return nil
}

// Get returns the record stored for addr.
func (s *Store) Get(addr common.Address) (types.Oracle, error) {
	bz, err := s.db.Get(GetOracleKey(addr))
	if err != nil {
		return types.Oracle{}, errorsmod.Wrapf(types.ErrStorage, "get %s: %v", addr.Hex(), err)
	}
	if len(bz) == 0 {
		return types.Oracle{}, errorsmod.Wrapf(types.ErrNotFound, "oracle %s", addr.Hex())
	}

	return decode(bz)
}

// GetAll returns every stored record in key order.
func (s *Store) GetAll() ([]types.Oracle, error) {
	it, err := s.db.Iterator(KeyOracle, prefixEnd(KeyOracle))
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrStorage, "iterate: %v", err)
	}
	defer it.Close()

	oracles := make([]types.Oracle, 0)
	for ; it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), KeyOracle) {
			continue
		}
		addr, err := ParseOracleKey(it.Key())
		if err != nil {
			return nil, errorsmod.Wrap(types.ErrStorage, err.Error())
		}
		oracle, err := decode(it.Value())
		if err != nil {
			return nil, err
		}
		if oracle.Address != addr {
			return nil, errorsmod.Wrapf(types.ErrStorage, "record for %s stored under %s", oracle.Address.Hex(), addr.Hex())
		}
		oracles = append(oracles, oracle)
	}
	if err := it.Error(); err != nil {
		return nil, errorsmod.Wrapf(types.ErrStorage, "iterate: %v", err)
	}

	return oracles, nil
}

func decode(bz []byte) (types.Oracle, error) {
	var oracle types.Oracle
	if err := rlp.DecodeBytes(bz, &oracle); err != nil {
		return types.Oracle{}, errorsmod.Wrapf(types.ErrStorage, "decode record: %v", err)
	}
	return oracle, nil
}
