// Package store keeps per-profile sidebar state and named saved quotes in Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"stickerquote/internal/domain"
	"stickerquote/internal/quote"
)

const opTimeout = 2 * time.Second

var (
	profilePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

	// ErrInvalidProfile is returned for profile names that cannot be used as key parts.
	ErrInvalidProfile = errors.New("invalid profile name")
)

// ValidProfile reports whether name is usable as a profile key.
func ValidProfile(name string) bool { return profilePattern.MatchString(name) }

// State is what the sidebar restores when it is reopened.
type State struct {
	VATRate        float64         `json:"vat_rate"`
	IncludeVAT     bool            `json:"include_vat"`
	DarkMode       bool            `json:"dark_mode"`
	Material       string          `json:"material"`
	RoundedCorners bool            `json:"rounded_corners"`
	Stickers       []quote.Sticker `json:"stickers"`
}

type SavedQuote struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Material  string          `json:"material,omitempty"`
	Stickers  []quote.Sticker `json:"stickers"`
	CreatedAt time.Time       `json:"created_at"`
}

type Store struct {
	rdb      *redis.Client
	stateTTL time.Duration
	now      func() time.Time
}

// New wraps rdb. A zero stateTTL keeps state forever.
func New(rdb *redis.Client, stateTTL time.Duration) *Store {
	return &Store{rdb: rdb, stateTTL: stateTTL, now: time.Now}
}

func stateKey(profile string) string     { return "state:" + profile }
func indexKey(profile string) string     { return "quotes:" + profile }
func quoteKey(profile, id string) string { return "quotes:" + profile + ":" + id }

func (s *Store) check(profile string) error {
	if s == nil || s.rdb == nil {
		return domain.ErrStoreUnavailable
	}
	if !ValidProfile(profile) {
		return ErrInvalidProfile
	}
	return nil
}

// LoadState returns the stored state and whether one existed.
func (s *Store) LoadState(ctx context.Context, profile string) (State, bool, error) {
	if err := s.check(profile); err != nil {
		return State{}, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, stateKey(profile)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load state: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

func (s *Store) SaveState(ctx context.Context, profile string, st State) error {
	if err := s.check(profile); err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, stateKey(profile), raw, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// SaveQuote stores q under a fresh id. Name is required.
func (s *Store) SaveQuote(ctx context.Context, profile string, q SavedQuote) (SavedQuote, error) {
	if err := s.check(profile); err != nil {
		return SavedQuote{}, err
	}
	if q.Name == "" {
		return SavedQuote{}, domain.ErrQuoteNameRequired
	}
	q.ID = xid.New().String()
	q.CreatedAt = s.now().UTC()
	if q.Stickers == nil {
		q.Stickers = []quote.Sticker{}
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return SavedQuote{}, fmt.Errorf("encode quote: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, quoteKey(profile, q.ID), raw, 0)
		p.ZAdd(ctx, indexKey(profile), redis.Z{Score: float64(q.CreatedAt.UnixMilli()), Member: q.ID})
		return nil
	})
	if err != nil {
		return SavedQuote{}, fmt.Errorf("save quote: %w", err)
	}
	return q, nil
}

// ListQuotes returns saved quotes oldest first.
func (s *Store) ListQuotes(ctx context.Context, profile string) ([]SavedQuote, error) {
	if err := s.check(profile); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ids, err := s.rdb.ZRange(ctx, indexKey(profile), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	out := make([]SavedQuote, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = quoteKey(profile, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load quotes: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index entry outlived its value
			continue
		}
		var q SavedQuote
		if err := json.Unmarshal([]byte(str), &q); err != nil {
			return nil, fmt.Errorf("decode quote %s: %w", ids[i], err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) GetQuote(ctx context.Context, profile, id string) (SavedQuote, error) {
	if err := s.check(profile); err != nil {
		return SavedQuote{}, err
	}
	if _, err := xid.FromString(id); err != nil {
		return SavedQuote{}, domain.ErrQuoteNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, quoteKey(profile, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SavedQuote{}, domain.ErrQuoteNotFound
	}
	if err != nil {
		return SavedQuote{}, fmt.Errorf("get quote: %w", err)
	}
	var q SavedQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return SavedQuote{}, fmt.Errorf("decode quote: %w", err)
	}
	return q, nil
}

func (s *Store) DeleteQuote(ctx context.Context, profile, id string) error {
	if err := s.check(profile); err != nil {
		return err
	}
	if _, err := xid.FromString(id); err != nil {
		return domain.ErrQuoteNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, quoteKey(profile, id))
		p.ZRem(ctx, indexKey(profile), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrQuoteNotFound
	}
	return nil
}

// LoadQuoteIntoState replaces the profile's current stickers with those of a
// saved quote, keeping the other settings.
func (s *Store) LoadQuoteIntoState(ctx context.Context, profile, id string) (State, error) {
	q, err := s.GetQuote(ctx, profile, id)
	if err != nil {
		return State{}, err
	}
	st, _, err := s.LoadState(ctx, profile)
	if err != nil {
		return State{}, err
	}
	st.Stickers = q.Stickers
	if q.Material != "" {
		st.Material = q.Material
	}
	if err := s.SaveState(ctx, profile, st); err != nil {
		return State{}, err
	}
	return st, nil
}
