package settings

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// sqlite :memory: stands in for Postgres; the store only uses portable SQL.
func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSQLStoreMigrateIdempotent(t *testing.T) {
	s := newTestSQLStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLStorePingChannel(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	if err := s.SetPingChannel(ctx, "100", 555); err != nil {
		t.Fatalf("SetPingChannel: %v", err)
	}
	if err := s.SetPingChannel(ctx, "100", 777); err != nil {
		t.Fatalf("SetPingChannel update: %v", err)
	}
	g, err := s.GuildConfig(ctx, "100")
	if err != nil {
		t.Fatalf("GuildConfig: %v", err)
	}
	if g.PingChannelID != 777 {
		t.Errorf("PingChannelID = %d, want 777", g.PingChannelID)
	}
}

func TestSQLStoreGuildConfigAbsent(t *testing.T) {
	s := newTestSQLStore(t)
	g, err := s.GuildConfig(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GuildConfig: %v", err)
	}
	if g.PingChannelID != 0 || len(g.Users) != 0 {
		t.Errorf("expected empty config, got %+v", g)
	}
}

func TestSQLStoreRegisterUnregister(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	if err := s.RegisterUser(ctx, "1", "2", "foo"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := s.RegisterUser(ctx, "1", "2", "FOO"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate register = %v, want ErrAlreadyRegistered", err)
	}
	if err := s.UnregisterUser(ctx, "1", "2", "Foo"); err != nil {
		t.Fatalf("UnregisterUser: %v", err)
	}
	if err := s.UnregisterUser(ctx, "1", "2", "foo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second unregister = %v, want ErrNotFound", err)
	}
}

func TestSQLStoreGuildsForLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	if err := s.RegisterUser(ctx, "100", "1", "alpha"); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterUser(ctx, "100", "2", "alpha"); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterUser(ctx, "200", "3", "beta"); err != nil {
		t.Fatal(err)
	}

	guilds, err := s.GuildsForLogin(ctx, "ALPHA")
	if err != nil {
		t.Fatalf("GuildsForLogin: %v", err)
	}
	if !reflect.DeepEqual(guilds, []string{"100"}) {
		t.Errorf("GuildsForLogin = %v, want [100]", guilds)
	}
}

func TestSQLStoreWelcomeChannels(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	if err := s.AddWelcomeChannel(ctx, "1", 10); err != nil {
		t.Fatal(err)
	}
	if err := s.AddWelcomeChannel(ctx, "1", 10); err != nil {
		t.Fatal(err)
	}
	g, err := s.GuildConfig(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g.WelcomeChannelIDs, []int64{10}) {
		t.Errorf("WelcomeChannelIDs = %v, want [10]", g.WelcomeChannelIDs)
	}
	if err := s.RemoveWelcomeChannel(ctx, "1", 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove missing channel = %v, want ErrNotFound", err)
	}
}

func TestSQLStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	if err := s.SetPingChannel(ctx, "100", 555); err != nil {
		t.Fatal(err)
	}
	if err := s.AddWelcomeChannel(ctx, "100", 7); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterUser(ctx, "100", "42", "streamer"); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !reflect.DeepEqual(doc, again) {
		t.Errorf("save(load()) not idempotent: %+v vs %+v", doc, again)
	}
}

func TestSQLStoreAllLogins(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	for _, reg := range [][3]string{
		{"100", "1", "alpha"},
		{"100", "2", "Alpha"},
		{"200", "3", "beta"},
	} {
		if err := s.RegisterUser(ctx, reg[0], reg[1], reg[2]); err != nil {
			t.Fatal(err)
		}
	}
	logins, err := s.AllLogins(ctx)
	if err != nil {
		t.Fatalf("AllLogins: %v", err)
	}
	if !reflect.DeepEqual(logins, []string{"alpha", "beta"}) {
		t.Errorf("AllLogins = %v, want [alpha beta]", logins)
	}
}
