// Package store implements the single JSON persistence file of spec.md
// §4.7: atomic temp-file-plus-rename writes serialized through a
// single-writer lock, and crash-recovery reconciliation of transient
// BUYING/SELLING positions on load.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
	"github.com/web3guy0/polybot/internal/riskguard"
)

// currentSchemaVersion is bumped whenever Snapshot's shape changes in a
// way that requires a migration on load.
const currentSchemaVersion = 1

// filePerm matches spec.md §4.7's owner-read/write-only requirement.
const filePerm = 0o600

// Snapshot is the whole-file contents of the store: every top-level
// section named in spec.md §4.7.
type Snapshot struct {
	SchemaVersion    int                       `json:"schemaVersion"`
	Bots             []*botmodel.BotInstance   `json:"bots"`
	WalletDictionary map[string]string         `json:"walletDictionary"` // opaque encrypted blobs, base64/hex at rest
	PrimaryWalletID  string                    `json:"primaryWalletId"`
	Trades           []botmodel.TradeRecord    `json:"trades"`
	CircuitBreaker   riskguard.State           `json:"circuitBreaker"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion:    currentSchemaVersion,
		Bots:             []*botmodel.BotInstance{},
		WalletDictionary: map[string]string{},
		Trades:           []botmodel.TradeRecord{},
	}
}

// Store is the single JSON file backing the bot registry, trade log, and
// circuit breaker state. All writes go through Save, which serializes
// callers behind mu so concurrent writers never interleave, per
// spec.md §4.7.
type Store struct {
	path string
	mu   sync.Mutex
}

// New constructs a Store bound to path. The file need not exist yet;
// Load returns an empty Snapshot in that case.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the whole file and returns its Snapshot. A missing file is
// not an error — it is the expected first-run state.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save atomically persists snap: marshal, write to a temp file in the
// same directory, fsync, then rename over the target. The rename is the
// atomic commit point — a crash before it leaves the prior file intact.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.SchemaVersion = currentSchemaVersion
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// LoadBots satisfies internal/supervisor.BotSource by returning the bots
// as stored. It does not reconcile transient BUYING/SELLING positions;
// Reconcile does that.
func (s *Store) LoadBots(ctx context.Context) ([]*botmodel.BotInstance, error) {
	snap, err := s.Load()
	if err != nil {
		return nil, err
	}
	return snap.Bots, nil
}

// receiptLookupTimeout bounds how long reconciliation waits for an
// already-mined receipt per position; crash recovery must not block
// startup indefinitely on a node that has fallen behind.
const receiptLookupTimeout = 5 * time.Second

// Reconcile resolves every BUYING/SELLING position left over from a
// crash by replaying its stored tx hash against rpc, per spec.md §4.7.
// A position whose transaction confirmed successfully moves to HOLDING
// (if it was BUYING) or SOLD (if it was SELLING); anything else reverts
// to the position's pre-transaction state so the next tick retries it.
func Reconcile(ctx context.Context, snap *Snapshot, rpc onchain.RPCClient) {
	for _, bot := range snap.Bots {
		for i := range bot.Positions {
			pos := &bot.Positions[i]
			switch pos.Status {
			case botmodel.StatusBuying:
				reconcileOne(ctx, rpc, pos.BuyTxHash, func(ok bool) {
					if ok {
						pos.Status = botmodel.StatusHolding
					} else {
						pos.Status = botmodel.StatusEmpty
					}
				})
			case botmodel.StatusSelling:
				reconcileOne(ctx, rpc, pos.SellTxHash, func(ok bool) {
					if ok {
						pos.Status = botmodel.StatusSold
					} else {
						pos.Status = botmodel.StatusHolding
					}
				})
			}
		}
	}
}

func reconcileOne(ctx context.Context, rpc onchain.RPCClient, txHash string, apply func(success bool)) {
	if txHash == "" {
		apply(false)
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, receiptLookupTimeout)
	defer cancel()

	receipt, err := rpc.WaitForReceipt(lookupCtx, common.HexToHash(txHash))
	if err != nil || receipt == nil {
		log.Warn().Str("txHash", txHash).Err(err).Msg("reconciliation: receipt unavailable, reverting to pre-transaction state")
		apply(false)
		return
	}
	apply(receipt.Success)
}
