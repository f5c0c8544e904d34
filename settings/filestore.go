package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore persists the settings document as a single pretty-printed JSON
// file. Every mutation is a full load -> mutate -> save round trip, and all
// mutations are serialized behind one mutex so concurrent writers cannot lose
// updates to each other.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted document. A missing file or malformed content
// yields an empty document; corruption is logged but never surfaced.
func (s *FileStore) Load(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(), nil
}

func (s *FileStore) load() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("settings file unreadable, starting empty", slog.String("path", s.path), slog.Any("err", err))
		}
		return NewDocument()
	}
	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		slog.Error("settings file corrupt, starting empty", slog.String("path", s.path), slog.Any("err", err))
		return NewDocument()
	}
	doc.normalize()
	return doc
}

// Save overwrites the persisted document in full. The write goes through a
// temp file plus rename so a crash mid-write leaves the old file intact.
func (s *FileStore) Save(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(doc)
}

func (s *FileStore) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// mutate runs fn against the current document and persists the result unless
// fn reports a no-op error (ErrNotFound, ErrAlreadyRegistered).
func (s *FileStore) mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// GuildConfig returns the guild's config, or an empty config when the guild
// has no stored settings yet.
func (s *FileStore) GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.load().Servers[guildID]; ok && g != nil {
		return g, nil
	}
	return &GuildConfig{Users: make(map[string][]string)}, nil
}

func (s *FileStore) SetPingChannel(ctx context.Context, guildID string, channelID int64) error {
	return s.mutate(func(doc *Document) error {
		doc.guild(guildID).PingChannelID = channelID
		return nil
	})
}

func (s *FileStore) AddWelcomeChannel(ctx context.Context, guildID string, channelID int64) error {
	return s.mutate(func(doc *Document) error {
		doc.guild(guildID).addWelcomeChannel(channelID)
		return nil
	})
}

func (s *FileStore) RemoveWelcomeChannel(ctx context.Context, guildID string, channelID int64) error {
	return s.mutate(func(doc *Document) error {
		return doc.guild(guildID).removeWelcomeChannel(channelID)
	})
}

func (s *FileStore) RegisterUser(ctx context.Context, guildID, memberID, login string) error {
	return s.mutate(func(doc *Document) error {
		return doc.guild(guildID).registerLogin(memberID, login)
	})
}

func (s *FileStore) UnregisterUser(ctx context.Context, guildID, memberID, login string) error {
	return s.mutate(func(doc *Document) error {
		return doc.guild(guildID).unregisterLogin(memberID, login)
	})
}

func (s *FileStore) GuildsForLogin(ctx context.Context, login string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	var guilds []string
	for id, g := range doc.Servers {
		if g != nil && g.hasLogin(login) {
			guilds = append(guilds, id)
		}
	}
	sort.Strings(guilds)
	return guilds, nil
}

func (s *FileStore) AllLogins(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	seen := make(map[string]struct{})
	var logins []string
	for _, g := range doc.Servers {
		if g == nil {
			continue
		}
		for _, ls := range g.Users {
			for _, l := range ls {
				key := strings.ToLower(l)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				logins = append(logins, l)
			}
		}
	}
	sort.Strings(logins)
	return logins, nil
}
