package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/dshills/veridoc/internal/envsubst"
)

// Entry is one cached model response.
type Entry struct {
	Key       string    `json:"key"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key identifies a cacheable backend call.
type Key struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Prompt      string
}

// Hash returns the hex SHA-256 digest of the key material.
func (k Key) Hash() string {
	h := sha256.New()
	for _, part := range []string{
		k.Provider,
		k.Model,
		strconv.FormatFloat(k.Temperature, 'g', -1, 64),
		strconv.Itoa(k.MaxTokens),
		k.Prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a directory of JSON entries. A disabled Cache never hits and
// never writes. Safe for concurrent use: writes go through a temp file and
// rename.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New creates a Cache. If dir is empty the default cache directory is used.
// ttlSeconds <= 0 disables expiry.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false, now: time.Now}, nil
	}
	if dir == "" {
		return nil, errors.New("cache directory is not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Get returns the cached response for k.
func (c *Cache) Get(k Key) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	path := c.entryPath(k.Hash())
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", false
	}
	if c.expired(entry) {
		os.Remove(path)
		return "", false
	}
	return entry.Response, true
}

// Put stores response under k.
func (c *Cache) Put(k Key, response string) error {
	if !c.Enabled() {
		return nil
	}
	hash := k.Hash()
	data, err := json.Marshal(Entry{
		Key:       hash,
		Provider:  k.Provider,
		Model:     k.Model,
		Response:  response,
		CreatedAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(hash)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	if !c.Enabled() || c.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Dir        string         `json:"dir"`
	Entries    int            `json:"entries"`
	TotalBytes int64          `json:"totalBytes"`
	Expired    int            `json:"expired"`
	ByProvider map[string]int `json:"byProvider,omitempty"`
}

// GetStats scans the cache directory.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Dir: c.dir, ByProvider: make(map[string]int)}
	if !c.Enabled() || c.dir == "" {
		return stats, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
		stats.ByProvider[entry.Provider]++
		if c.expired(entry) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string { return c.dir }

// Enabled reports whether the cache reads and writes entries.
func (c *Cache) Enabled() bool { return c != nil && c.enabled }

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *Cache) entryPath(hash string) string {
	return filepath.Join(c.dir, hash+".json")
}

// DefaultDir returns the platform cache directory for veridoc, reading
// XDG_CACHE_HOME, HOME and LOCALAPPDATA through lookup.
func DefaultDir(lookup envsubst.Lookup) (string, error) {
	if xdg, _ := lookup("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "veridoc"), nil
	}
	home, _ := lookup("HOME")
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		home = h
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "veridoc"), nil
	case "windows":
		if localAppData, _ := lookup("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "veridoc", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "veridoc", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "veridoc"), nil
	}
}
