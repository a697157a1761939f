package config

import (
	"errors"
	"fmt"

	"github.com/apexbay/nftmarket/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Market.Operator == "" {
		return errors.New("market.operator is required")
	}
	if _, err := model.ParseAddress(c.Market.Operator); err != nil {
		return fmt.Errorf("market.operator: %w", err)
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Journal.BatchSize < 1 {
		return errors.New("journal.batch_size must be >= 1")
	}
	if c.Journal.FlushInterval <= 0 {
		return errors.New("journal.flush_interval must be positive")
	}

	if c.Feed.SendBuffer < 1 {
		return errors.New("feed.send_buffer must be >= 1")
	}
	if c.Feed.PingInterval <= 0 {
		return errors.New("feed.ping_interval must be positive")
	}
	if c.Feed.MaxClients < 1 {
		return errors.New("feed.max_clients must be >= 1")
	}

	for i, coll := range c.Collections {
		if _, err := model.ParseAddress(coll.Address); err != nil {
			return fmt.Errorf("collections[%d].address: %w", i, err)
		}
		for j, tok := range coll.Premint {
			if _, err := model.ParseAddress(tok.Owner); err != nil {
				return fmt.Errorf("collections[%d].premint[%d].owner: %w", i, j, err)
			}
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
