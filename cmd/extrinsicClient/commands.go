package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/keystore"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/persistence"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transactionBuilder"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/transactionSigner"
	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

func genesisHashCommand(c *cli.Context) (err error) {
	rt, err := newRuntime(c, partNode)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	ctx, cancel := rt.withCallTimeout(c.Context)
	defer cancel()

	hash, err := rt.query.GenesisHash(ctx)
	if err != nil {
		return fmt.Errorf("failed to get genesis hash: %w", err)
	}
	fmt.Println(hash.Hex())
	return nil
}

func nonceCommand(c *cli.Context) (err error) {
	rt, err := newRuntime(c, partNode)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	ctx, cancel := rt.withCallTimeout(c.Context)
	defer cancel()

	kp := keystore.DeriveKeypair(rt.cfg.Seed)
	account := kp.AccountId()
	kp.Zeroize()
	nonce, err := rt.query.AccountSequenceNumber(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to get nonce of %s: %w", account.Hex(), err)
	}
	fmt.Printf("account: %s\nnonce:   %d\n", account.Hex(), nonce)
	return nil
}

func sudoHeapPagesCommand(c *cli.Context) error {
	return submitCall(c, transactionBuilder.SudoSetHeapPages(c.Uint64("pages")))
}

func putCodeCommand(c *cli.Context) error {
	path := c.String("code-file")
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read code file %s: %w", path, err)
	}
	if len(code) > config.DefaultMaxCodeSize {
		return fmt.Errorf("code file %s is %d bytes, limit is %d", path, len(code), config.DefaultMaxCodeSize)
	}
	return submitCall(c, transactionBuilder.DeployCode(c.Uint64("gas-limit"), code))
}

func createContractCommand(c *cli.Context) error {
	codeHash, err := types.ChainHashFromHex(c.String("code-hash"))
	if err != nil {
		return fmt.Errorf("invalid --code-hash: %w", err)
	}
	endowment, ok := new(big.Int).SetString(c.String("endowment"), 10)
	if !ok || endowment.Sign() < 0 {
		return fmt.Errorf("invalid --endowment %q: must be a non-negative decimal integer", c.String("endowment"))
	}
	data, err := hexutil.Decode(c.String("data"))
	if err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}
	return submitCall(c, transactionBuilder.CreateContract(endowment, c.Uint64("gas-limit"), codeHash, data))
}

func submitCall(c *cli.Context, call transactionBuilder.CallPayload) (err error) {
	rt, err := newRuntime(c, partSigner)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	result, err := rt.signer.SignAndSubmit(c.Context, call)
	if err != nil {
		if errors.Is(err, persistence.ErrNonceAlreadyUsed) {
			return fmt.Errorf("failed to submit %s: %w (resend the held submission with the resume command)", call.CallName(), err)
		}
		return fmt.Errorf("failed to submit %s: %w", call.CallName(), err)
	}
	return reportSubmission(c, rt, result)
}

func resumeCommand(c *cli.Context) (err error) {
	rt, err := newRuntime(c, partSigner)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	result, err := rt.signer.Resume(c.Context, c.String("id"))
	if err != nil {
		return fmt.Errorf("failed to resume submission %s: %w", c.String("id"), err)
	}
	return reportSubmission(c, rt, result)
}

func reportSubmission(c *cli.Context, rt *runtime, result *transactionSigner.SubmissionResult) error {
	fmt.Printf("submission:   %s\nnonce:        %d\nsubscription: %s\n",
		result.Record.ID, result.Record.Nonce, result.SubscriptionId)

	if !c.Bool("watch") {
		return nil
	}
	return rt.signer.Watch(c.Context, result, func(event types.NotificationEvent) {
		if event.BlockHash != "" {
			fmt.Printf("status: %s (%s)\n", event.Status, event.BlockHash)
			return
		}
		fmt.Printf("status: %s\n", event.Status)
	})
}

func submissionsCommand(c *cli.Context) (err error) {
	rt, err := newRuntime(c, partJournal)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close()) }()

	records, err := rt.journal.ListSubmissions()
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}
	for _, r := range records {
		fmt.Printf("%s  %s  nonce=%d  %s  %s\n", r.ID, r.Account, r.Nonce, r.Call, r.Status)
	}
	return nil
}
