package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for a marketd instance.
type Config struct {
	Instance    InstanceConfig     `yaml:"instance"`
	Server      ServerConfig       `yaml:"server"`
	Database    DatabaseConfig     `yaml:"database"`
	Journal     JournalConfig      `yaml:"journal"`
	Feed        FeedConfig         `yaml:"feed"`
	Market      MarketConfig       `yaml:"market"`
	Collections []CollectionConfig `yaml:"collections"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// InstanceConfig identifies this marketd.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection for the event journal.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds event journal batch writer settings.
type JournalConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// FeedConfig holds WebSocket event feed settings.
type FeedConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	PingInterval time.Duration `yaml:"ping_interval"`
	MaxClients   int           `yaml:"max_clients"`
}

// MarketConfig holds marketplace settlement settings. Operator is the
// address sellers must approve on their collections before listing.
type MarketConfig struct {
	Operator string `yaml:"operator"`
}

// CollectionConfig declares an in-memory NFT collection served by this
// instance, with tokens minted at boot. Preminted tokens are approved
// for the marketplace operator so they can be listed immediately.
type CollectionConfig struct {
	Address string         `yaml:"address"`
	Premint []PremintToken `yaml:"premint"`
}

// PremintToken is one token minted at boot.
type PremintToken struct {
	TokenID uint64 `yaml:"token_id"`
	Owner   string `yaml:"owner"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog.Level. Unknown
// names fall back to Info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
