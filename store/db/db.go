// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/alcaldia-digital/memoria/internal/profile"
	"github.com/alcaldia-digital/memoria/store"
	"github.com/alcaldia-digital/memoria/store/db/postgres"
	"github.com/alcaldia-digital/memoria/store/db/sqlite"
)

// NewDBDriver creates the database driver named by the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
}
