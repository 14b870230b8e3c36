package storage

import (
	"context"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/cenkalti/backoff/v4"
	// We include the postresql driver in our implementation, so users can pick "postgres" via configuration.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	if err := RegisterStorage(DatabaseSQL, func() ServiceStorage { return new(SQLDB) }); err != nil {
		panic(err)
	}
}

const (
	SQLConnectionString OptionKey = "sql-connection-string-option"
	SQLDriverName       OptionKey = "sql-driver-name-option"

	// how long Init keeps retrying while the database comes up
	sqlStartupTimeout = 30 * time.Second
)

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS key_values (
    key varchar PRIMARY KEY,
    value varchar
);`,
	`CREATE TABLE IF NOT EXISTS namespaces (
    namespace varchar PRIMARY KEY
);`,
}

type SQLDB struct {
	db               *sql.DB
	connectionString string
}

func (s *SQLDB) Init(opts ...Option) error {
	connString, sqlDriverName, err := processSQLOptions(opts...)
	if err != nil {
		return err
	}
	s.connectionString = connString

	db, err := sql.Open(sqlDriverName, connString)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = sqlStartupTimeout
	if err = backoff.RetryNotify(db.Ping, b, func(err error, next time.Duration) {
		logrus.WithError(err).Warnf("database not reachable, retrying in %s", next)
	}); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	for _, stmt := range sqlSchema {
		if _, err = db.Exec(stmt); err != nil {
			return errors.Wrap(err, "creating schema")
		}
	}

	s.db = db
	return nil
}

func processSQLOptions(opts ...Option) (connString string, sqlDriverName string, err error) {
	if len(opts) != 2 {
		return "", "", errors.New("sql options must contain connection string and driver name")
	}
	for _, opt := range opts {
		switch opt.ID {
		case SQLConnectionString:
			maybeConnString, ok := opt.Option.(string)
			if !ok {
				err = errors.New("sql connection string must be a string")
				return
			}
			if len(maybeConnString) == 0 {
				err = errors.New("sql connection string must not be empty")
				return
			}
			connString = maybeConnString
		case SQLDriverName:
			maybeDriverName, ok := opt.Option.(string)
			if !ok {
				err = errors.New("sql driver name must be a string")
				return
			}
			if len(maybeDriverName) == 0 {
				err = errors.New("sql driver name must not be empty")
				return
			}
			sqlDriverName = maybeDriverName
		}
	}
	if len(connString) == 0 || len(sqlDriverName) == 0 {
		err = errors.New("sql connection string and driver name must not be empty")
		return
	}
	return connString, sqlDriverName, nil
}

func (s *SQLDB) Type() Type {
	return DatabaseSQL
}

func (s *SQLDB) URI() string {
	return s.connectionString
}

func (s *SQLDB) IsOpen() bool {
	if err := s.db.Ping(); err != nil {
		logrus.WithError(err).Error("pinging db")
		return false
	}
	return true
}

func (s *SQLDB) Close() error {
	return s.db.Close()
}

type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func write(ctx context.Context, db execContext, namespace, key string, value []byte) error {
	_, err := db.ExecContext(ctx, "INSERT INTO namespaces (namespace) VALUES ($1) ON CONFLICT DO NOTHING", namespace)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "INSERT INTO key_values (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		Join(namespace, key), base64.RawStdEncoding.EncodeToString(value))
	return err
}

func (s *SQLDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return write(ctx, tx, namespace, key, value)
	})
}

func (s *SQLDB) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(namespaces) != len(values) {
		return errors.New("namespaces, keys, and values, are not of equal length")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range keys {
			if err := write(ctx, tx, namespaces[i], keys[i], values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLDB) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logrus.WithError(err).Error("unable to rollback")
		}
	}(tx)

	if err = f(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func (s *SQLDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	r := s.db.QueryRowContext(ctx, "SELECT value FROM key_values WHERE key = $1", Join(namespace, key))
	var value string
	if err := r.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return base64.RawStdEncoding.DecodeString(value)
}

func (s *SQLDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM key_values WHERE key = $1 LIMIT 1)", Join(namespace, key)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *SQLDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	return s.ReadPrefix(ctx, namespace, "")
}

func (s *SQLDB) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM key_values WHERE key LIKE $1", Join(namespace, prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	allValues := make(map[string][]byte)
	for rows.Next() {
		var key, value string
		if err = rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		decoded, err := base64.RawStdEncoding.DecodeString(value)
		if err != nil {
			return nil, err
		}
		allValues[key[len(namespace)+1:]] = decoded
	}
	return allValues, rows.Err()
}

func (s *SQLDB) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM key_values WHERE key LIKE $1", Join(namespace, "%"))
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var keys []string
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key[len(namespace)+1:])
	}
	return keys, rows.Err()
}

func (s *SQLDB) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM key_values WHERE key = $1", Join(namespace, key))
	return err
}

func (s *SQLDB) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "DELETE FROM namespaces WHERE namespace = $1 RETURNING namespace", namespace)
		var removed string
		if err := row.Scan(&removed); err != nil {
			return errors.Wrapf(err, "deleting namespace<%s>", namespace)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM key_values WHERE key LIKE $1", Join(namespace, "%"))
		return err
	})
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logrus.WithError(err).Error("closing rows")
	}
}
