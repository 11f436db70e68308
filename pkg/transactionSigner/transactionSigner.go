package transactionSigner

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/keystore"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/submission"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transactionBuilder"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNonceConsumed means the chain moved past a journaled submission's nonce
	ErrNonceConsumed = errors.New("nonce already consumed on chain")

	// ErrNothingToResume means the submission no longer holds its nonce
	ErrNothingToResume = errors.New("submission does not hold its nonce")
)

// ITransactionSigner derives the sender, signs calls for it and hands them to the node
type ITransactionSigner interface {
	// SignAndSubmit queries genesis hash and nonce, builds and journals the extrinsic,
	// then submits it
	SignAndSubmit(ctx context.Context, call transactionBuilder.CallPayload) (*SubmissionResult, error)

	// Resume resends a journaled extrinsic that still holds its nonce
	Resume(ctx context.Context, id string) (*SubmissionResult, error)

	// Watch follows a submitted extrinsic until a terminal status, recording every
	// update in the journal
	Watch(ctx context.Context, result *SubmissionResult, onEvent func(types.NotificationEvent)) error

	// GetSenderAccount returns the account that signs
	GetSenderAccount() types.AccountId

	Close()
}

type IChainQuerier interface {
	GenesisHash(ctx context.Context) (types.ChainHash, error)
	AccountSequenceNumber(ctx context.Context, accountId types.AccountId) (types.SequenceNumber, error)
}

type ISubmitter interface {
	Submit(ctx context.Context, extrinsicHex string) (types.SubscriptionId, error)
	Watch(ctx context.Context, id types.SubscriptionId) (<-chan types.NotificationEvent, <-chan error)
}

type SignerConfig struct {
	// Seed is the raw test-only seed; see keystore.DeriveKeypair
	Seed string `json:"seed" yaml:"seed"`

	// CallTimeout bounds each query and the submit call; zero leaves it to ctx
	CallTimeout time.Duration `json:"callTimeout" yaml:"callTimeout"`
}

type SubmissionResult struct {
	Record         *persistence.SubmissionRecord
	SubscriptionId types.SubscriptionId
	ExtrinsicHex   string
}

// ExtrinsicSigner implements ITransactionSigner with a seed-derived ed25519 keypair
type ExtrinsicSigner struct {
	keypair     *keystore.Keypair
	builder     *transactionBuilder.Builder
	query       IChainQuerier
	submitter   ISubmitter
	journal     persistence.ISubmissionJournal
	callTimeout time.Duration
	logger      *zap.Logger
}

var _ ITransactionSigner = (*ExtrinsicSigner)(nil)

func NewTransactionSigner(
	cfg *SignerConfig,
	builder *transactionBuilder.Builder,
	query IChainQuerier,
	submitter ISubmitter,
	journal persistence.ISubmissionJournal,
	logger *zap.Logger,
) (*ExtrinsicSigner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("signer config cannot be nil")
	}
	if cfg.Seed == "" {
		return nil, fmt.Errorf("seed cannot be empty")
	}
	if builder == nil || query == nil || submitter == nil || journal == nil {
		return nil, fmt.Errorf("builder, query client, submitter and journal are required")
	}

	kp := keystore.DeriveKeypair(cfg.Seed)
	logger.Sugar().Infow("Derived sender account", "account", kp.AccountId().Hex())

	return &ExtrinsicSigner{
		keypair:     kp,
		builder:     builder,
		query:       query,
		submitter:   submitter,
		journal:     journal,
		callTimeout: cfg.CallTimeout,
		logger:      logger,
	}, nil
}

func (s *ExtrinsicSigner) GetSenderAccount() types.AccountId {
	return s.keypair.AccountId()
}

// Close wipes the secret key; the signer cannot sign afterwards
func (s *ExtrinsicSigner) Close() {
	s.keypair.Zeroize()
}

func (s *ExtrinsicSigner) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *ExtrinsicSigner) SignAndSubmit(ctx context.Context, call transactionBuilder.CallPayload) (*SubmissionResult, error) {
	sender := s.keypair.AccountId()

	queryCtx, cancel := s.withCallTimeout(ctx)
	genesisHash, err := s.query.GenesisHash(queryCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch genesis hash: %w", err)
	}

	queryCtx, cancel = s.withCallTimeout(ctx)
	nonce, err := s.query.AccountSequenceNumber(queryCtx, sender)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce for %s: %w", sender.Hex(), err)
	}

	extrinsicHex, err := s.builder.BuildTransaction(s.keypair, sender, call, nonce, genesisHash)
	if err != nil {
		return nil, fmt.Errorf("failed to build extrinsic: %w", err)
	}

	record := persistence.NewSubmissionRecord(
		sender,
		nonce,
		s.builder.Params().Version.String(),
		call.CallName(),
		extrinsicHex,
	)
	if err := s.journal.SaveSubmission(record); err != nil {
		return nil, fmt.Errorf("failed to journal extrinsic: %w", err)
	}

	s.logger.Sugar().Infow("Submitting extrinsic",
		"id", record.ID,
		"call", record.Call,
		"sender", record.Account,
		"nonce", nonce,
		"genesisHash", genesisHash.Hex(),
	)
	return s.submitRecord(ctx, record)
}

// Resume resends the stored extrinsic of a journaled submission that still holds its
// nonce, e.g. one whose submit call failed or timed out. The bytes are identical to the
// first attempt, so the node imports them at most once. When the chain nonce has
// already moved past the record nothing is sent, and a record that never reached the
// node is marked stale.
func (s *ExtrinsicSigner) Resume(ctx context.Context, id string) (*SubmissionResult, error) {
	record, err := s.journal.LoadSubmission(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission %s: %w", id, err)
	}
	if record == nil {
		return nil, errors.Wrapf(persistence.ErrSubmissionNotFound, "submission %s", id)
	}

	sender := s.keypair.AccountId()
	if record.Account != sender.Hex() {
		return nil, fmt.Errorf("submission %s was signed by %s, not %s", id, record.Account, sender.Hex())
	}
	if record.ReleasesNonce() || record.Status.IsTerminal() || record.Status == persistence.StatusStale {
		return nil, errors.Wrapf(ErrNothingToResume, "submission %s is %s", id, record.Status)
	}

	queryCtx, cancel := s.withCallTimeout(ctx)
	nonce, err := s.query.AccountSequenceNumber(queryCtx, sender)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce for %s: %w", sender.Hex(), err)
	}
	if nonce > record.Nonce {
		if !record.Submitted {
			if err := s.journal.UpdateStatus(record.ID, persistence.StatusStale); err != nil {
				s.logger.Sugar().Warnw("Failed to mark submission stale", "id", record.ID, "error", err)
			}
		}
		return nil, errors.Wrapf(ErrNonceConsumed, "chain nonce is %d, submission %s used %d", nonce, id, record.Nonce)
	}

	s.logger.Sugar().Infow("Resending journaled extrinsic",
		"id", record.ID,
		"call", record.Call,
		"status", record.Status,
		"nonce", record.Nonce,
	)
	return s.submitRecord(ctx, record)
}

func (s *ExtrinsicSigner) submitRecord(ctx context.Context, record *persistence.SubmissionRecord) (*SubmissionResult, error) {
	submitCtx, cancel := s.withCallTimeout(ctx)
	subscriptionId, err := s.submitter.Submit(submitCtx, record.ExtrinsicHex)
	cancel()
	if err != nil {
		if errors.Is(err, submission.ErrRejected) {
			if updateErr := s.journal.UpdateStatus(record.ID, persistence.StatusRejected); updateErr != nil {
				s.logger.Sugar().Warnw("Failed to record rejection", "id", record.ID, "error", updateErr)
			}
		}
		return nil, err
	}

	if err := s.journal.SetSubscription(record.ID, subscriptionId); err != nil {
		s.logger.Sugar().Warnw("Failed to record subscription", "id", record.ID, "error", err)
	} else {
		record.SubscriptionId = subscriptionId
		record.Submitted = true
		record.Status = persistence.StatusSubmitted
	}

	return &SubmissionResult{
		Record:         record,
		SubscriptionId: subscriptionId,
		ExtrinsicHex:   record.ExtrinsicHex,
	}, nil
}

func (s *ExtrinsicSigner) Watch(ctx context.Context, result *SubmissionResult, onEvent func(types.NotificationEvent)) error {
	if result == nil {
		return fmt.Errorf("submission result cannot be nil")
	}

	events, errCh := s.submitter.Watch(ctx, result.SubscriptionId)
	for event := range events {
		if err := s.journal.UpdateStatus(result.Record.ID, event.Status); err != nil {
			s.logger.Sugar().Warnw("Failed to record status", "id", result.Record.ID, "status", event.Status, "error", err)
		} else {
			result.Record.Status = event.Status
		}
		if onEvent != nil {
			onEvent(event)
		}
	}
	return <-errCh
}
