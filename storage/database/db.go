package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/feedback/core"
	appfs "github.com/trezcool/feedback/fs"
)

var (
	// pingAttempts bounds how long Open waits for postgres to accept connections.
	pingAttempts = 30
	pingBackoff  = 100 * time.Millisecond
)

// dsn builds the connection URL of dbName. Admin connections are used to bootstrap
// the feedback role and database.
func dsn(conf *core.Config, dbName string, admin bool) string {
	usr := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		usr = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if conf.Database.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")
	q.Set("application_name", conf.AppName)

	u := url.URL{
		Scheme:   "postgres",
		User:     usr,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func connect(conf *core.Config, dbName string, admin bool) (*sql.DB, error) {
	db, err := sql.Open(conf.Database.Engine, dsn(conf, dbName, admin))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", dbName)
	}
	if err = waitReady(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connecting to %s database", dbName)
	}
	return db, nil
}

// Open connects to the feedback database once postgres accepts connections.
func Open(conf *core.Config) (*sql.DB, error) {
	return connect(conf, conf.Database.Name, false)
}

// waitReady pings db with a linear backoff until it answers or the attempts run out.
func waitReady(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * pingBackoff):
		}
	}
	return errors.Wrap(err, "database not ready")
}

func exists(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (bool, error) {
	var found bool
	if err := exec.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

// ensureRole creates the login role the feedback service connects with.
func ensureRole(ctx context.Context, exec core.DBExecutor, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}
	found, err := exists(ctx, exec, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User)
	if err != nil {
		return errors.Wrapf(err, "looking up role %q", conf.Database.User)
	}
	if found {
		return nil
	}

	q := fmt.Sprintf(
		"CREATE ROLE %s LOGIN CREATEDB ENCRYPTED PASSWORD %s",
		pq.QuoteIdentifier(conf.Database.User),
		pq.QuoteLiteral(conf.Database.Password),
	)
	if _, err = exec.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "creating role %q", conf.Database.User)
	}
	return nil
}

// ensureDatabase creates the feedback database, owned by the connected role.
func ensureDatabase(ctx context.Context, exec core.DBExecutor, conf *core.Config) error {
	found, err := exists(ctx, exec, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrapf(err, "looking up database %q", conf.Database.Name)
	}
	if found {
		return nil
	}

	if _, err = exec.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(conf.Database.Name)); err != nil {
		return errors.Wrapf(err, "creating database %q", conf.Database.Name)
	}
	return nil
}

// CreateIfNotExist bootstraps the feedback role (as the admin user) and then the feedback
// database (as the feedback role), so the tables end up owned by the service.
func CreateIfNotExist(conf *core.Config) error {
	ctx := context.Background()

	admin, err := connect(conf, "postgres", true)
	if err != nil {
		return err
	}
	err = ensureRole(ctx, admin, conf)
	_ = admin.Close()
	if err != nil {
		return err
	}

	db, err := connect(conf, "postgres", false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return ensureDatabase(ctx, db, conf)
}

// Migrate applies the pending embedded migrations.
func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, appfs.FS, appfs.MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating feedback schema")
	}
	return nil
}
