package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated by registerPrefix() below.
var statePrefixes []string

var (
	prefixSystem    = registerPrefix("sys:")
	prefixAccount   = registerPrefix("acct:")
	prefixAllowance = registerPrefix("allow:")
	prefixGame      = registerPrefix("game:")
	prefixBook      = registerPrefix("book:")
	prefixPayout    = registerPrefix("payout:")
	prefixNonce     = registerPrefix("nonce:")
	prefixCounter   = registerPrefix("ctr:")
	prefixParams    = registerPrefix("param:")
	prefixRound     = registerPrefix("round:")
	prefixStake     = registerPrefix("stake:")
	prefixMatch     = registerPrefix("match:")
)

const (
	keySystem      = "sys:config"
	keySupply      = "sys:supply"
	keyRoundParams = "param:round"
	keyMatchParams = "param:match"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation. Readers such
// as the RPC server may use it concurrently with the sequencer.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

func (s *StateDB) getAmount(key string) (*big.Int, error) {
	data, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (s *StateDB) setAmount(key string, v *big.Int) error {
	if v.Sign() < 0 {
		return fmt.Errorf("negative amount for %s", key)
	}
	s.set(key, v.Bytes())
	return nil
}

func addrKey(prefix string, addr common.Address) string {
	return prefix + addr.Hex()
}

func idKey(prefix string, id uint64) string {
	return fmt.Sprintf("%s%020d", prefix, id)
}

// ---- System ----

func (s *StateDB) GetSystem() (*core.SystemConfig, error) {
	var cfg core.SystemConfig
	if err := s.getJSON(keySystem, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *StateDB) SetSystem(cfg *core.SystemConfig) error {
	return s.setJSON(keySystem, cfg)
}

// ---- Payment asset ----

func (s *StateDB) GetAccount(addr common.Address) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(addrKey(prefixAccount, addr), &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: addr, Balance: new(big.Int)}, nil
	}
	if err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	if acc.Balance != nil && acc.Balance.Sign() < 0 {
		return fmt.Errorf("negative balance for %s", acc.Address.Hex())
	}
	return s.setJSON(addrKey(prefixAccount, acc.Address), acc)
}

func allowanceKey(owner, spender common.Address) string {
	return prefixAllowance + owner.Hex() + ":" + spender.Hex()
}

func (s *StateDB) GetAllowance(owner, spender common.Address) (*big.Int, error) {
	return s.getAmount(allowanceKey(owner, spender))
}

func (s *StateDB) SetAllowance(owner, spender common.Address, amount *big.Int) error {
	return s.setAmount(allowanceKey(owner, spender), amount)
}

func (s *StateDB) GetSupply() (*big.Int, error) {
	return s.getAmount(keySupply)
}

func (s *StateDB) SetSupply(supply *big.Int) error {
	return s.setAmount(keySupply, supply)
}

// ---- Ledger core ----

func (s *StateDB) GetGame(id string) (*core.GameConfig, error) {
	var g core.GameConfig
	if err := s.getJSON(prefixGame+id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *StateDB) SetGame(g *core.GameConfig) error {
	return s.setJSON(prefixGame+g.ID, g)
}

// GetGameBook returns a zeroed book for a game that has no activity yet.
func (s *StateDB) GetGameBook(id string) (*core.GameBook, error) {
	b := core.NewGameBook(id)
	err := s.getJSON(prefixBook+id, b)
	if errors.Is(err, core.ErrNotFound) {
		return core.NewGameBook(id), nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *StateDB) SetGameBook(b *core.GameBook) error {
	return s.setJSON(prefixBook+b.GameID, b)
}

func (s *StateDB) GetPendingPayout(addr common.Address) (*big.Int, error) {
	return s.getAmount(addrKey(prefixPayout, addr))
}

func (s *StateDB) SetPendingPayout(addr common.Address, amount *big.Int) error {
	return s.setAmount(addrKey(prefixPayout, addr), amount)
}

// ---- Nonce ledger ----

func nonceKey(scope string, nonce *big.Int) string {
	return prefixNonce + scope + ":" + common.BigToHash(nonce).Hex()
}

func (s *StateDB) IsNonceUsed(scope string, nonce *big.Int) (bool, error) {
	_, err := s.get(nonceKey(scope, nonce))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) MarkNonceUsed(scope string, nonce *big.Int) error {
	if nonce == nil || nonce.Sign() < 0 {
		return errors.New("nonce must be non-negative")
	}
	s.set(nonceKey(scope, nonce), []byte{1})
	return nil
}

// ---- Counters ----

func (s *StateDB) GetCounter(name string) (uint64, error) {
	data, err := s.get(prefixCounter + name)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("counter %s: corrupt value", name)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *StateDB) SetCounter(name string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	s.set(prefixCounter+name, buf[:])
	return nil
}

// ---- Round engine ----

func (s *StateDB) GetRoundParams() (*core.RoundParams, error) {
	var p core.RoundParams
	if err := s.getJSON(keyRoundParams, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetRoundParams(p *core.RoundParams) error {
	return s.setJSON(keyRoundParams, p)
}

func (s *StateDB) GetRound(id uint64) (*core.Round, error) {
	var r core.Round
	if err := s.getJSON(idKey(prefixRound, id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetRound(r *core.Round) error {
	return s.setJSON(idKey(prefixRound, r.ID), r)
}

func stakeKey(roundID uint64, player common.Address) string {
	return fmt.Sprintf("%s%020d:%s", prefixStake, roundID, player.Hex())
}

func (s *StateDB) GetRoundStake(roundID uint64, player common.Address) (*core.RoundStake, error) {
	var st core.RoundStake
	if err := s.getJSON(stakeKey(roundID, player), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StateDB) SetRoundStake(st *core.RoundStake) error {
	return s.setJSON(stakeKey(st.RoundID, st.Player), st)
}

// ---- Match engine ----

func (s *StateDB) GetMatchParams() (*core.MatchParams, error) {
	var p core.MatchParams
	if err := s.getJSON(keyMatchParams, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetMatchParams(p *core.MatchParams) error {
	return s.setJSON(keyMatchParams, p)
}

func (s *StateDB) GetMatch(id uint64) (*core.Match, error) {
	var m core.Match
	if err := s.getJSON(idKey(prefixMatch, id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *StateDB) SetMatch(m *core.Match) error {
	return s.setJSON(idKey(prefixMatch, m.ID), m)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, stateSnapshot{
		dirty:   copyDirty(s.dirty),
		deleted: copyDeleted(s.deleted),
	})
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it and every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]
	s.dirty = copyDirty(snap.dirty)
	s.deleted = copyDeleted(snap.deleted)
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot drops snapshot id and later ones while keeping writes.
func (s *StateDB) DiscardSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id >= 0 && id < len(s.snapshots) {
		s.snapshots = s.snapshots[:id]
	}
}

func copyDirty(src map[string][]byte) map[string][]byte {
	dst := make(map[string][]byte, len(src))
	for k, v := range src {
		cp := make([]byte, len(v))
		copy(cp, v)
		dst[k] = cp
	}
	return dst
}

func copyDeleted(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ComputeRoot returns the deterministic hash of the complete world state:
// persisted entries under the registered prefixes merged with the write
// buffer, sorted and length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
