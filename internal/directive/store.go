// Package directive resolves guidance content in three tiers.
//
// Every directive key has a compact representation (a structured summary,
// always present) and may have a standard (structured JSON) and a detailed
// (markdown narrative) representation on disk. The Resolver decides which
// tier a caller gets; the Store serves the content.
package directive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Tier is one of the three escalating detail levels.
type Tier string

const (
	TierCompact  Tier = "compact"
	TierStandard Tier = "standard"
	TierDetailed Tier = "detailed"
)

// TierValues returns the enum values for MCP tool definitions.
func TierValues() []string {
	return []string{string(TierCompact), string(TierStandard), string(TierDetailed)}
}

// Rank orders tiers: compact < standard < detailed.
func (t Tier) Rank() int {
	switch t {
	case TierCompact:
		return 0
	case TierStandard:
		return 1
	case TierDetailed:
		return 2
	default:
		return -1
	}
}

// ParseTier validates a tier name. The empty string yields "" without error.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TierCompact, TierStandard, TierDetailed:
		return t, nil
	default:
		return "", fmt.Errorf("invalid tier %q: must be one of: compact, standard, detailed", s)
	}
}

const (
	// CompactFile holds every compact entry, keyed by directive key.
	CompactFile = "compact.json"
	// StandardDir holds one <key>.json per standard-tier document.
	StandardDir = "standard"
	// DetailedDir holds one <key>.md per detailed-tier document.
	DetailedDir = "detailed"
)

// Store serves directive content by key.
type Store interface {
	// Compact returns the compact entry for key, or NotFound.
	Compact(ctx context.Context, key string) (*Node, error)
	// Standard returns the standard document for key, or NotFound.
	Standard(ctx context.Context, key string) (string, error)
	// Detailed returns the detailed document for key, or NotFound.
	Detailed(ctx context.Context, key string) (string, error)
	// Keys lists every known directive key in sorted order.
	Keys(ctx context.Context) ([]string, error)
}

// FileStore reads directives from a directory laid out as
//
//	<dir>/compact.json
//	<dir>/standard/<key>.json
//	<dir>/detailed/<key>.md
//
// Compact entries are loaded once and kept for the store's lifetime.
// Richer tiers are loaded on demand into a TTL cache.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	compact map[string]*Node
	group   singleflight.Group

	tiers *cache.Cache
}

// NewFileStore creates a store rooted at dir. A ttl of 0 keeps richer
// tiers cached for the store's lifetime.
func NewFileStore(dir string, ttl time.Duration, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	expiry := ttl
	if ttl == 0 {
		expiry = cache.NoExpiration
	}
	cleanup := ttl * 2
	if ttl == 0 {
		cleanup = 0
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		tiers:  cache.New(expiry, cleanup),
	}
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) entries() (map[string]*Node, error) {
	s.mu.RLock()
	loaded := s.compact
	s.mu.RUnlock()
	if loaded != nil {
		return loaded, nil
	}

	v, err, _ := s.group.Do("compact", func() (any, error) {
		entries, err := s.loadCompact()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.compact = entries
		s.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*Node), nil
}

func (s *FileStore) loadCompact() (map[string]*Node, error) {
	path := filepath.Join(s.dir, CompactFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ctxerr.NotFound(path, err)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	root, err := ParseNode(data)
	if err != nil {
		return nil, ctxerr.Malformed(path, err)
	}
	if root.Kind != NodeObject {
		return nil, ctxerr.Malformed(path, fmt.Errorf("top level must be an object keyed by directive"))
	}
	entries := make(map[string]*Node, len(root.Members))
	for _, m := range root.Members {
		entries[m.Name] = m.Value
	}
	s.logger.Debug("compact directives loaded", zap.Int("count", len(entries)), zap.String("path", path))
	return entries, nil
}

// validKey rejects keys that could escape the store directory.
func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}

// Compact implements Store.
func (s *FileStore) Compact(_ context.Context, key string) (*Node, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	node, ok := entries[key]
	if !ok {
		return nil, ctxerr.NotFound("directive "+key, nil)
	}
	return node, nil
}

// Keys implements Store.
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Standard implements Store. The document must parse as JSON.
func (s *FileStore) Standard(_ context.Context, key string) (string, error) {
	return s.richer(TierStandard, key, func(path string, data []byte) error {
		if !json.Valid(data) {
			return ctxerr.Malformed(path, fmt.Errorf("standard tier must be valid JSON"))
		}
		return nil
	})
}

// Detailed implements Store.
func (s *FileStore) Detailed(_ context.Context, key string) (string, error) {
	return s.richer(TierDetailed, key, nil)
}

func (s *FileStore) richer(tier Tier, key string, check func(path string, data []byte) error) (string, error) {
	if !validKey(key) {
		return "", ctxerr.NotFound("directive "+key, nil)
	}
	cacheKey := string(tier) + ":" + key
	if v, ok := s.tiers.Get(cacheKey); ok {
		return v.(string), nil
	}

	var path string
	if tier == TierStandard {
		path = filepath.Join(s.dir, StandardDir, key+".json")
	} else {
		path = filepath.Join(s.dir, DetailedDir, key+".md")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ctxerr.NotFound(path, err)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if check != nil {
		if err := check(path, data); err != nil {
			return "", err
		}
	}
	content := string(data)
	s.tiers.SetDefault(cacheKey, content)
	s.logger.Debug("directive tier loaded", zap.String("key", key), zap.String("tier", string(tier)))
	return content, nil
}
