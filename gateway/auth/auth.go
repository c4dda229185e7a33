package auth

import (
	"container/list"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"nftstake/crypto"
)

const (
	// LoginDomain prefixes every signed login payload so signatures cannot be
	// replayed against other protocols.
	LoginDomain = "stakingd-login"

	maxAllowedTimestampSkew  = 2 * time.Minute
	defaultTimestampSkew     = maxAllowedTimestampSkew
	maxNonceWindow           = 10 * time.Minute
	defaultNonceWindow       = maxNonceWindow
	defaultNonceCapacity     = 4096
	maxNonceCapacity         = 65536
	persistencePruneInterval = time.Minute
)

var (
	ErrMissingField     = errors.New("auth: missing login field")
	ErrTimestampSkew    = errors.New("auth: timestamp outside allowed skew")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrNonceReplayed    = errors.New("auth: nonce already used")
	ErrInvalidAddress   = errors.New("auth: invalid address")
)

// LoginRequest is a wallet-signed proof of control over Address.
type LoginRequest struct {
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// NonceRecord captures persisted nonce usage metadata.
type NonceRecord struct {
	Address    string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence provides durable storage for login nonce usage.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// LoginPayload is the exact byte string a wallet signs to log in.
func LoginPayload(address string, timestamp int64, nonce string) []byte {
	return []byte(strings.Join([]string{LoginDomain, address, strconv.FormatInt(timestamp, 10), nonce}, "\n"))
}

// SignLogin builds a login request for the key at the given instant.
func SignLogin(key *crypto.PrivateKey, now time.Time, nonce string) (*LoginRequest, error) {
	address := key.Address().String()
	ts := now.Unix()
	sig, err := key.Sign(LoginPayload(address, ts, nonce))
	if err != nil {
		return nil, err
	}
	return &LoginRequest{Address: address, Timestamp: ts, Nonce: nonce, Signature: hex.EncodeToString(sig)}, nil
}

// Authenticator verifies signed login requests.
type Authenticator struct {
	allowedTimestampSkew time.Duration
	nonceTTL             time.Duration
	nowFn                func() time.Time

	nonces *nonceStore

	persistence NoncePersistence
	pruneMu     sync.Mutex
	lastPruned  time.Time
}

// NewAuthenticator builds an Authenticator. Skew and TTL are clamped to safe
// maxima; a nil persistence keeps nonces in memory only.
func NewAuthenticator(skew time.Duration, nonceTTL time.Duration, nonceCapacity int, nowFn func() time.Time, persistence NoncePersistence) *Authenticator {
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if skew > maxAllowedTimestampSkew {
		skew = maxAllowedTimestampSkew
	}
	if nonceTTL <= 0 {
		nonceTTL = defaultNonceWindow
	}
	if nonceTTL > maxNonceWindow {
		nonceTTL = maxNonceWindow
	}
	return &Authenticator{
		allowedTimestampSkew: skew,
		nonceTTL:             nonceTTL,
		nowFn:                nowFn,
		nonces:               newNonceStore(nonceTTL, nonceCapacity),
		persistence:          persistence,
	}
}

// Authenticate validates the login and returns the proven address.
func (a *Authenticator) Authenticate(ctx context.Context, req *LoginRequest) (crypto.Address, error) {
	if req == nil {
		return crypto.Address{}, ErrMissingField
	}
	rawAddr := strings.TrimSpace(req.Address)
	nonce := strings.TrimSpace(req.Nonce)
	sigHex := strings.TrimPrefix(strings.TrimSpace(req.Signature), "0x")
	if rawAddr == "" || nonce == "" || sigHex == "" || req.Timestamp == 0 {
		return crypto.Address{}, ErrMissingField
	}
	claimed, err := crypto.ParseAddress(rawAddr)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	now := a.nowFn().UTC()
	skew := now.Sub(time.Unix(req.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedTimestampSkew {
		return crypto.Address{}, fmt.Errorf("%w of %s", ErrTimestampSkew, a.allowedTimestampSkew)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer, err := crypto.RecoverAddress(LoginPayload(rawAddr, req.Timestamp, nonce), sig)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != claimed {
		return crypto.Address{}, ErrInvalidSignature
	}
	duplicate, err := a.registerNonce(ctx, claimed.String(), strconv.FormatInt(req.Timestamp, 10), nonce, now)
	if err != nil {
		return crypto.Address{}, err
	}
	if duplicate {
		return crypto.Address{}, ErrNonceReplayed
	}
	return claimed, nil
}

// HydrateNonces warms the in-memory cache with persisted nonce usage records.
func (a *Authenticator) HydrateNonces(ctx context.Context, cutoff time.Time) error {
	if a == nil || a.persistence == nil {
		return nil
	}
	records, err := a.persistence.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load persistent nonces: %w", err)
	}
	for _, rec := range records {
		if rec.Address == "" || rec.Timestamp == "" || rec.Nonce == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		a.nonces.Add(compositeKey(rec.Address, rec.Timestamp, rec.Nonce), observed)
	}
	return nil
}

func (a *Authenticator) registerNonce(ctx context.Context, address, timestamp, nonce string, now time.Time) (bool, error) {
	composite := compositeKey(address, timestamp, nonce)
	if a.nonces.Contains(composite, now) {
		return true, nil
	}
	if a.persistence != nil {
		if err := a.prunePersistent(ctx, now); err != nil {
			return false, err
		}
		existed, err := a.persistence.EnsureNonce(ctx, NonceRecord{
			Address:    address,
			Timestamp:  timestamp,
			Nonce:      nonce,
			ObservedAt: now,
		})
		if err != nil {
			return false, fmt.Errorf("persist nonce: %w", err)
		}
		if existed {
			a.nonces.Add(composite, now)
			return true, nil
		}
	}
	return a.nonces.Seen(composite, now), nil
}

func (a *Authenticator) prunePersistent(ctx context.Context, now time.Time) error {
	a.pruneMu.Lock()
	defer a.pruneMu.Unlock()
	if !a.lastPruned.IsZero() && now.Sub(a.lastPruned) < persistencePruneInterval {
		return nil
	}
	if err := a.persistence.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
		return fmt.Errorf("prune persistent nonces: %w", err)
	}
	a.lastPruned = now
	return nil
}

func compositeKey(address, timestamp, nonce string) string {
	return strings.Join([]string{address, timestamp, nonce}, "|")
}

type nonceStore struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	ts  time.Time
}

func newNonceStore(ttl time.Duration, capacity int) *nonceStore {
	if capacity <= 0 {
		capacity = defaultNonceCapacity
	}
	if capacity > maxNonceCapacity {
		capacity = maxNonceCapacity
	}
	return &nonceStore{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen returns true if the nonce was already observed within the TTL window and
// records it otherwise.
func (n *nonceStore) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	if _, exists := n.entries[key]; exists {
		return true
	}
	n.insertLocked(key, now)
	return false
}

// Contains reports whether the nonce has been observed without recording it.
func (n *nonceStore) Contains(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	_, exists := n.entries[key]
	return exists
}

// Add registers a nonce in the cache, applying eviction as required.
func (n *nonceStore) Add(key string, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	n.insertLocked(key, now)
}

func (n *nonceStore) insertLocked(key string, now time.Time) {
	if elem, exists := n.entries[key]; exists {
		elem.Value = nonceEntry{key: key, ts: now}
		n.order.MoveToBack(elem)
		return
	}
	for n.order.Len() >= n.capacity {
		front := n.order.Front()
		n.order.Remove(front)
		delete(n.entries, front.Value.(nonceEntry).key)
	}
	n.entries[key] = n.order.PushBack(nonceEntry{key: key, ts: now})
}

func (n *nonceStore) evictExpired(cutoff time.Time) {
	for {
		front := n.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(nonceEntry)
		if !entry.ts.Before(cutoff) {
			return
		}
		n.order.Remove(front)
		delete(n.entries, entry.key)
	}
}
