package auth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nftstake/storage"
)

const (
	nonceKeyPrefix    = "auth/nonce/"
	observedKeyPrefix = "auth/observed/"
)

var errStopIteration = errors.New("stop iteration")

// StoreNoncePersistence keeps login nonces in the node database next to the
// ledger state.
type StoreNoncePersistence struct {
	db storage.Database
}

// NewStoreNoncePersistence wraps db.
func NewStoreNoncePersistence(db storage.Database) *StoreNoncePersistence {
	return &StoreNoncePersistence{db: db}
}

// EnsureNonce records a nonce usage if it has not been observed previously.
func (p *StoreNoncePersistence) EnsureNonce(ctx context.Context, record NonceRecord) (bool, error) {
	if p == nil || p.db == nil {
		return false, fmt.Errorf("nonce persistence not configured")
	}
	if record.Address == "" || record.Timestamp == "" || record.Nonce == "" {
		return false, fmt.Errorf("nonce record incomplete")
	}
	observed := record.ObservedAt.UTC()
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	composite := compositeKey(record.Address, record.Timestamp, record.Nonce)
	nonceKey := []byte(nonceKeyPrefix + composite)
	existing, err := p.db.Get(nonceKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("load nonce: %w", err)
	default:
		if len(existing) == 8 {
			previous := int64(binary.BigEndian.Uint64(existing))
			if observed.UnixNano() > previous {
				batch := storage.NewBatch()
				batch.Put(nonceKey, encodeUnixNano(observed.UnixNano()))
				batch.Delete([]byte(observedKey(previous, composite)))
				batch.Put([]byte(observedKey(observed.UnixNano(), composite)), []byte{})
				if err := p.db.Write(batch); err != nil {
					return false, fmt.Errorf("update observed nonce: %w", err)
				}
			}
		}
		return true, nil
	}

	nanos := observed.UnixNano()
	batch := storage.NewBatch()
	batch.Put(nonceKey, encodeUnixNano(nanos))
	batch.Put([]byte(observedKey(nanos, composite)), []byte{})
	if err := p.db.Write(batch); err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return false, nil
}

// RecentNonces returns persisted nonces observed at or after the cutoff.
func (p *StoreNoncePersistence) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("nonce persistence not configured")
	}
	floor := cutoff.UTC().UnixNano()
	records := make([]NonceRecord, 0)
	err := p.db.Iterate([]byte(observedKeyPrefix), func(key, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		composite, nanos, ok := parseObservedKey(key)
		if !ok || nanos < floor {
			return nil
		}
		parts := strings.SplitN(composite, "|", 3)
		if len(parts) != 3 {
			return nil
		}
		records = append(records, NonceRecord{
			Address:    parts[0],
			Timestamp:  parts[1],
			Nonce:      parts[2],
			ObservedAt: time.Unix(0, nanos).UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate observed nonces: %w", err)
	}
	return records, nil
}

// PruneNonces deletes entries observed before the cutoff.
func (p *StoreNoncePersistence) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("nonce persistence not configured")
	}
	floor := cutoff.UTC().UnixNano()
	batch := storage.NewBatch()
	err := p.db.Iterate([]byte(observedKeyPrefix), func(key, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		composite, nanos, ok := parseObservedKey(key)
		if !ok {
			return nil
		}
		// Observed keys sort by time.
		if nanos >= floor {
			return errStopIteration
		}
		batch.Delete(key)
		batch.Delete([]byte(nonceKeyPrefix + composite))
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return fmt.Errorf("iterate observed nonces: %w", err)
	}
	if err := p.db.Write(batch); err != nil {
		return fmt.Errorf("prune nonces: %w", err)
	}
	return nil
}

func observedKey(nanos int64, composite string) string {
	return fmt.Sprintf("%s%020d:%s", observedKeyPrefix, nanos, composite)
}

func parseObservedKey(key []byte) (string, int64, bool) {
	raw := strings.TrimPrefix(string(key), observedKeyPrefix)
	stamp, composite, ok := strings.Cut(raw, ":")
	if !ok {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return composite, nanos, true
}

func encodeUnixNano(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}
