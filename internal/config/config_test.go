package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jensholdgaard/auction-house/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
database:
  host: "db.example.com"
  port: 5433
  user: "auction"
  password: "secret"
  dbname: "auction"
  sslmode: "require"
  driver: "postgres"
  max_open_conns: 40
server:
  port: 9090
  request_timeout: 5s
auction:
  duration: 72h
session:
  idle_timeout: 10m
  cookie_name: "auction_sid"
telemetry:
  service_name: "my-auction"
  otlp_endpoint: "localhost:4318"
sweeper:
  enabled: true
  schedule: "*/5 * * * *"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Database.MaxOpenConns != 40 {
					t.Errorf("got max_open_conns %d, want %d", cfg.Database.MaxOpenConns, 40)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 9090)
				}
				if cfg.Server.RequestTimeout != 5*time.Second {
					t.Errorf("got request timeout %s, want 5s", cfg.Server.RequestTimeout)
				}
				if cfg.Auction.Duration != 72*time.Hour {
					t.Errorf("got auction duration %s, want 72h", cfg.Auction.Duration)
				}
				if cfg.Session.IdleTimeout != 10*time.Minute {
					t.Errorf("got idle timeout %s, want 10m", cfg.Session.IdleTimeout)
				}
				if cfg.Session.CookieName != "auction_sid" {
					t.Errorf("got cookie name %q, want %q", cfg.Session.CookieName, "auction_sid")
				}
				if cfg.Telemetry.ServiceName != "my-auction" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "my-auction")
				}
				if !cfg.Sweeper.Enabled {
					t.Error("expected sweeper to be enabled")
				}
			},
		},
		{
			name: "defaults applied",
			yaml: `
server:
  port: 8081
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Host != "localhost" {
					t.Errorf("got db host %q, want %q", cfg.Database.Host, "localhost")
				}
				if cfg.Database.Driver != "postgres" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "postgres")
				}
				if !cfg.Database.Migrate {
					t.Error("expected migrate to default to true")
				}
				if cfg.Auction.Duration != 604800*time.Second {
					t.Errorf("got auction duration %s, want 168h", cfg.Auction.Duration)
				}
				if cfg.Auction.ListingLimit != 500 {
					t.Errorf("got listing limit %d, want 500", cfg.Auction.ListingLimit)
				}
				if cfg.Session.IdleTimeout != 5*time.Minute {
					t.Errorf("got idle timeout %s, want 5m", cfg.Session.IdleTimeout)
				}
				if cfg.Session.CookieName != "SID" {
					t.Errorf("got cookie name %q, want %q", cfg.Session.CookieName, "SID")
				}
				if cfg.Telemetry.ServiceName != "auctiond" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "auctiond")
				}
				if cfg.Sweeper.Enabled {
					t.Error("expected sweeper to be disabled by default")
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "memory driver accepted",
			yaml: `
database:
  driver: "memory"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "memory" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "memory")
				}
			},
		},
		{
			name: "unknown log level rejected",
			yaml: `
telemetry:
  log_level: "loud"
`,
			wantErr: true,
		},
		{
			name: "invalid driver rejected",
			yaml: `
database:
  driver: "mongodb"
`,
			wantErr: true,
		},
		{
			name: "zero auction duration rejected",
			yaml: `
auction:
  duration: 0s
`,
			wantErr: true,
		},
		{
			name: "zero idle timeout rejected",
			yaml: `
session:
  idle_timeout: 0s
`,
			wantErr: true,
		},
		{
			name: "bad sweeper schedule rejected when enabled",
			yaml: `
sweeper:
  enabled: true
  schedule: "every now and then"
`,
			wantErr: true,
		},
		{
			name: "bad sweeper schedule ignored when disabled",
			yaml: `
sweeper:
  enabled: false
  schedule: "every now and then"
`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
