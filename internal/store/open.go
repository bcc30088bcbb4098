package store

import (
	"fmt"
)

// Options selects and locates a Gateway implementation.
type Options struct {
	Driver      string
	DatabaseURL string
	BadgerPath  string
	// Migrate applies the embedded schema after connecting to Postgres.
	Migrate bool
}

// Open returns the Gateway named by opts.Driver.
func Open(opts Options) (Gateway, error) {
	switch opts.Driver {
	case "postgres":
		s, err := NewStore(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := s.RunMigrations(""); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	case "badger":
		return OpenBadger(opts.BadgerPath)
	case "memory":
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
