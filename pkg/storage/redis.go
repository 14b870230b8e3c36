package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func init() {
	if err := RegisterStorage(Redis, func() ServiceStorage { return new(RedisDB) }); err != nil {
		panic(err)
	}
}

const (
	PONG               = "PONG"
	RedisScanBatchSize = 1000

	RedisAddressOption  OptionKey = "redis-address-option"
	RedisPasswordOption OptionKey = "redis-password-option"
	RedisFlushOption    OptionKey = "redis-flush-option"
)

type RedisDB struct {
	db *goredislib.Client
}

func (b *RedisDB) Init(opts ...Option) error {
	address, ok, err := optionValue[string](opts, RedisAddressOption)
	if err != nil {
		return err
	}
	if !ok || address == "" {
		return errors.New("redis options must contain an address")
	}
	password, _, err := optionValue[string](opts, RedisPasswordOption)
	if err != nil {
		return err
	}
	flush, _, err := optionValue[bool](opts, RedisFlushOption)
	if err != nil {
		return err
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     address,
		Password: password,
	})
	if err = redisotel.InstrumentTracing(client); err != nil {
		return errors.Wrap(err, "instrumenting redis tracing")
	}
	b.db = client

	if flush {
		if err = b.db.FlushAll(context.Background()).Err(); err != nil {
			return errors.Wrap(err, "flushing redis")
		}
	}
	return nil
}

func (b *RedisDB) Type() Type {
	return Redis
}

func (b *RedisDB) URI() string {
	return b.db.Options().Addr
}

func (b *RedisDB) IsOpen() bool {
	pong, err := b.db.Ping(context.Background()).Result()
	if err != nil {
		logrus.WithError(err).Error("pinging redis")
		return false
	}
	return pong == PONG
}

func (b *RedisDB) Close() error {
	return b.db.Close()
}

func (b *RedisDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	// Zero expiration means the key has no expiration time.
	return b.db.Set(ctx, Join(namespace, key), value, 0).Err()
}

func (b *RedisDB) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(namespaces) != len(values) {
		return errors.New("namespaces, keys, and values, are not of equal length")
	}

	// commands queued in a MULTI/EXEC pipeline succeed or fail together
	_, err := b.db.TxPipelined(ctx, func(pipe goredislib.Pipeliner) error {
		for i := range namespaces {
			if err := pipe.Set(ctx, Join(namespaces[i], keys[i]), values[i], 0).Err(); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (b *RedisDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	res, err := b.db.Get(ctx, Join(namespace, key)).Bytes()
	if errors.Is(err, goredislib.Nil) {
		return nil, nil
	}
	return res, err
}

func (b *RedisDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	n, err := b.db.Exists(ctx, Join(namespace, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	return b.ReadPrefix(ctx, namespace, "")
}

func (b *RedisDB) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	keys, err := b.scanKeys(ctx, Join(namespace, prefix))
	if err != nil {
		return nil, errors.Wrap(err, "read all keys error")
	}
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := b.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "getting multiple keys")
	}
	if len(keys) != len(values) {
		return nil, errors.New("key length does not match value length")
	}

	trim := len(Join(namespace, ""))
	for i, val := range values {
		s, ok := val.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		result[keys[i][trim:]] = []byte(s)
	}
	return result, nil
}

func (b *RedisDB) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	keys, err := b.scanKeys(ctx, Join(namespace, ""))
	if err != nil {
		return nil, err
	}
	prefix := Join(namespace, "")
	for i := range keys {
		keys[i] = strings.TrimPrefix(keys[i], prefix)
	}
	return keys, nil
}

// scanKeys walks the keyspace with SCAN so large namespaces never block the server.
func (b *RedisDB) scanKeys(ctx context.Context, match string) ([]string, error) {
	var cursor uint64
	allKeys := make([]string, 0)
	for {
		keys, nextCursor, err := b.db.Scan(ctx, cursor, match+"*", RedisScanBatchSize).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scan error")
		}
		allKeys = append(allKeys, keys...)
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return allKeys, nil
}

func (b *RedisDB) Delete(ctx context.Context, namespace, key string) error {
	return b.db.Del(ctx, Join(namespace, key)).Err()
}

func (b *RedisDB) DeleteNamespace(ctx context.Context, namespace string) error {
	keys, err := b.scanKeys(ctx, Join(namespace, ""))
	if err != nil {
		return errors.Wrap(err, "read all keys")
	}
	if len(keys) == 0 {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return b.db.Del(ctx, keys...).Err()
}
