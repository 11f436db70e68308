package main

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/chainQuery"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/logger"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/notificationHandler"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	badgerJournal "github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence/badger"
	memoryJournal "github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence/memory"
	redisJournal "github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence/redis"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/storageKey"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/submission"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transactionBuilder"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transactionSigner"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transport"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// runtimePart selects which components a command needs
type runtimePart int

const (
	partNode runtimePart = 1 << iota
	partJournal

	// partSigner needs the node and the journal
	partSigner = partNode | partJournal
)

// runtime holds the components of one CLI invocation
type runtime struct {
	cfg        *config.SubmitterConfig
	logger     *zap.Logger
	client     *transport.Client
	query      *chainQuery.ChainQueryClient
	builder    *transactionBuilder.Builder
	submission *submission.SubmissionClient
	journal    persistence.ISubmissionJournal
	signer     *transactionSigner.ExtrinsicSigner
}

func configFromContext(c *cli.Context) (*config.SubmitterConfig, error) {
	version, err := config.ParseProtocolVersion(c.String("protocol"))
	if err != nil {
		return nil, err
	}
	params := config.DefaultProtocolParams(version)
	params.SignThreshold = c.Int("sign-threshold")

	cfg := &config.SubmitterConfig{
		WsURL:        c.String("ws-url"),
		Seed:         c.String("seed"),
		Protocol:     params,
		CallTimeout:  c.Duration("call-timeout"),
		WaitTimeout:  c.Duration("wait-timeout"),
		Journal:      config.JournalType(c.String("journal")),
		JournalPath:  c.String("journal-path"),
		RedisAddress: c.String("redis-address"),
		Debug:        c.Bool("debug"),
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newJournal(cfg *config.SubmitterConfig, l *zap.Logger) (persistence.ISubmissionJournal, error) {
	switch cfg.Journal {
	case config.JournalTypeBadger:
		return badgerJournal.NewBadgerJournal(cfg.JournalPath, l)
	case config.JournalTypeRedis:
		return redisJournal.NewRedisJournal(&redisJournal.RedisConfig{Address: cfg.RedisAddress}, l)
	default:
		return memoryJournal.NewMemoryJournal(l), nil
	}
}

// newRuntime assembles the parts of the client stack a command needs. The signer is
// built only when both the node and the journal are requested.
func newRuntime(c *cli.Context, parts runtimePart) (*runtime, error) {
	cfg, err := configFromContext(c)
	if err != nil {
		return nil, err
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: l}

	if parts&partJournal != 0 {
		rt.journal, err = newJournal(cfg, l)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to open %s journal: %w", cfg.Journal, err), rt.Close())
		}
	}
	if parts&partNode == 0 {
		return rt, nil
	}

	notifications := notificationHandler.NewNotificationHandler(l, cfg.NotificationBacklog)
	rt.client, err = transport.Dial(c.Context, &transport.ClientConfig{
		URL:              cfg.WsURL,
		NotificationSink: notifications,
	}, l)
	if err != nil {
		return nil, multierr.Append(err, rt.Close())
	}

	keyCodec := storageKey.NewStorageKeyCodec(cfg.Protocol.NonceStoragePrefix)
	rt.query = chainQuery.NewChainQueryClient(rt.client, keyCodec, l)

	rt.builder, err = transactionBuilder.NewBuilder(cfg.Protocol, l)
	if err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	rt.submission = submission.NewSubmissionClient(rt.client, notifications, cfg.WaitTimeout, l)

	if parts&partSigner != partSigner {
		return rt, nil
	}

	rt.signer, err = transactionSigner.NewTransactionSigner(&transactionSigner.SignerConfig{
		Seed:        cfg.Seed,
		CallTimeout: cfg.CallTimeout,
	}, rt.builder, rt.query, rt.submission, rt.journal, l)
	if err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	return rt, nil
}

// withCallTimeout bounds a single read-only query
func (rt *runtime) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, rt.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (rt *runtime) Close() error {
	if rt.signer != nil {
		rt.signer.Close()
	}

	var err error
	if rt.client != nil {
		err = multierr.Append(err, rt.client.Close())
	}
	if rt.journal != nil {
		err = multierr.Append(err, rt.journal.Close())
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return err
}
