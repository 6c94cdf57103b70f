package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/engine"
)

const (
	keyPrefix = "wbws:result:"
	// DefaultTTL applies when NewResults gets a non-positive ttl
	DefaultTTL = time.Hour
)

// Results memoizes run results. A run is a pure function of its config and
// bars, so the key is the config hash plus a fingerprint of both series.
type Results struct {
	backend Backend
	ttl     time.Duration
}

// NewResults stores entries in backend for ttl
func NewResults(backend Backend, ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Results{backend: backend, ttl: ttl}
}

// Backend reports which store holds the results
func (r *Results) Backend() string { return r.backend.Kind() }

// TTL is how long a stored result stays valid
func (r *Results) TTL() time.Duration { return r.ttl }

// Key identifies a run
func Key(configHash string, ltf, htf bars.Series) string {
	h := sha256.New()
	h.Write([]byte(configHash))
	fingerprint(h, ltf)
	fingerprint(h, htf)
	return hex.EncodeToString(h.Sum(nil))
}

func fingerprint(h interface{ Write([]byte) (int, error) }, s bars.Series) {
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	h.Write([]byte(s.Symbol))
	put(uint64(s.Timeframe))
	put(uint64(len(s.Bars)))
	for _, b := range s.Bars {
		put(uint64(b.Timestamp.UnixNano()))
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			put(math.Float64bits(v))
		}
	}
}

// Get returns the cached result for key. A missing or undecodable entry is ErrMiss.
func (r *Results) Get(ctx context.Context, key string) (*engine.Result, error) {
	data, err := r.backend.Load(ctx, keyPrefix+key)
	if err != nil {
		return nil, err
	}
	var res engine.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: undecodable entry: %v", ErrMiss, err)
	}
	return &res, nil
}

// Put stores res under key. Results without any bars are not kept.
func (r *Results) Put(ctx context.Context, key string, res *engine.Result) error {
	if res == nil || res.Bars == 0 {
		return errors.New("refusing to cache an empty result")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return r.backend.Save(ctx, keyPrefix+key, data, r.ttl)
}
