package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixSubmission  = "extrinsic:submission:"
	keyPrefixNonce       = "extrinsic:nonce:"
	keySchemaVersion     = "extrinsic:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetSubmissions = "extrinsic:submissions:index"

	operationTimeout = 5 * time.Second
)

// RedisJournal is an ISubmissionJournal shared through Redis, so several clients
// signing for the same account see each other's nonces. The nonce index is claimed
// with WATCH/MULTI, which makes the guard hold across processes.
type RedisJournal struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "devnet:" gives "devnet:extrinsic:submission:<id>"
	KeyPrefix string
}

func NewRedisJournal(cfg *RedisConfig, logger *zap.Logger) (*RedisJournal, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rj := &RedisJournal{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rj.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis submission journal initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)
	return rj, nil
}

func (r *RedisJournal) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisJournal) submissionKey(id string) string {
	return r.prefixKey(keyPrefixSubmission + id)
}

func (r *RedisJournal) nonceKey(account string, nonce types.SequenceNumber) string {
	return r.prefixKey(keyPrefixNonce + persistence.NonceKey(account, nonce))
}

func (r *RedisJournal) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisJournal) getRecord(ctx context.Context, c getter, id string) (*persistence.SubmissionRecord, error) {
	data, err := c.Get(ctx, r.submissionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return persistence.UnmarshalSubmissionRecord([]byte(data))
}

func (r *RedisJournal) SaveSubmission(record *persistence.SubmissionRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil SubmissionRecord")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalSubmissionRecord(record)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	nk := r.nonceKey(record.Account, record.Nonce)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		existingId, err := tx.Get(ctx, nk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read nonce index: %w", err)
		}
		if err == nil && existingId != record.ID {
			existing, err := r.getRecord(ctx, tx, existingId)
			if err != nil {
				return fmt.Errorf("failed to load submission %s: %w", existingId, err)
			}
			if !existing.ReleasesNonce() {
				return errors.Wrapf(persistence.ErrNonceAlreadyUsed, "account %s nonce %d held by submission %s (%s)",
					record.Account, record.Nonce, existing.ID, existing.Status)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.submissionKey(record.ID), data, 0)
			pipe.Set(ctx, nk, record.ID, 0)
			pipe.SAdd(ctx, r.prefixKey(keySetSubmissions), record.ID)
			return nil
		})
		return err
	}, nk)

	if errors.Is(err, redis.TxFailedErr) {
		return errors.Wrapf(persistence.ErrNonceAlreadyUsed, "account %s nonce %d claimed concurrently", record.Account, record.Nonce)
	}
	return err
}

func (r *RedisJournal) LoadSubmission(id string) (*persistence.SubmissionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	record, err := r.getRecord(ctx, r.client, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load SubmissionRecord: %w", err)
	}
	return record, nil
}

func (r *RedisJournal) LoadSubmissionByNonce(account types.AccountId, nonce types.SequenceNumber) (*persistence.SubmissionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	id, err := r.client.Get(ctx, r.nonceKey(account.Hex(), nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce index: %w", err)
	}

	record, err := r.getRecord(ctx, r.client, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load SubmissionRecord: %w", err)
	}
	return record, nil
}

func (r *RedisJournal) ListSubmissions() ([]*persistence.SubmissionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetSubmissions)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list submission ids: %w", err)
	}

	records := []*persistence.SubmissionRecord{}
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.submissionKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch SubmissionRecords: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// in the index but gone; clean up the index
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for SubmissionRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalSubmissionRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal SubmissionRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}

	persistence.SortSubmissions(records)
	return records, nil
}

func (r *RedisJournal) SetSubscription(id string, subscriptionId types.SubscriptionId) error {
	return r.update(id, func(rec *persistence.SubmissionRecord) {
		rec.SubscriptionId = subscriptionId
		rec.Submitted = true
		rec.Status = persistence.StatusSubmitted
	})
}

func (r *RedisJournal) UpdateStatus(id string, status types.TransactionStatus) error {
	return r.update(id, func(rec *persistence.SubmissionRecord) {
		rec.Status = status
	})
}

func (r *RedisJournal) update(id string, fn func(*persistence.SubmissionRecord)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	key := r.submissionKey(id)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		record, err := r.getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return errors.Wrapf(persistence.ErrSubmissionNotFound, "id %s", id)
		}
		fn(record)
		record.Touch()

		data, err := persistence.MarshalSubmissionRecord(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// Close shuts down the journal; idempotent
func (r *RedisJournal) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis submission journal closed")
	return nil
}

// HealthCheck verifies the journal is operational
func (r *RedisJournal) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
