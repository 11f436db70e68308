package main

import (
	"log"
	"os"
	"time"

	"github.com/Layr-Labs/extrinsic-submitter-go/pkg/config"
	"github.com/urfave/cli/v2"
)

const (
	defaultWsURL       = "ws://127.0.0.1:8087"
	defaultSeed        = "Alice"
	defaultCallTimeout = 30 * time.Second
	defaultWaitTimeout = 2 * time.Minute
	defaultHeapPages   = 64
	defaultGasLimit    = 500000
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "extrinsic-client",
		Usage: "Build, sign and submit extrinsics to a substrate-style node",
		Description: `A client that signs privileged and contract extrinsics and submits them over a
websocket JSON-RPC connection.

This client can:
- Read the genesis hash and an account's nonce from the node
- Submit a sudo set_heap_pages call
- Upload contract code and instantiate contracts
- Follow a submitted extrinsic through its lifecycle
- Resend a journaled extrinsic whose submission did not complete

The --seed flag derives keys INSECURELY and must only be used against test networks.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ws-url",
				Usage:   "Node websocket URL",
				Value:   defaultWsURL,
				EnvVars: []string{config.EnvExtrinsicWsURL},
			},
			&cli.StringFlag{
				Name:    "seed",
				Usage:   "Raw test-only seed the sender key is derived from",
				Value:   defaultSeed,
				EnvVars: []string{config.EnvExtrinsicSeed},
			},
			&cli.StringFlag{
				Name:    "protocol",
				Usage:   "Extrinsic wire format (" + config.GetSupportedProtocolVersionsString() + ")",
				Value:   string(config.ProtocolVersionClassic),
				EnvVars: []string{config.EnvExtrinsicProtocol},
			},
			&cli.IntFlag{
				Name:    "sign-threshold",
				Usage:   "Payloads longer than this many bytes are hashed before signing (0: classic hashes above 256, tagged never hashes)",
				EnvVars: []string{config.EnvExtrinsicSignThreshold},
			},
			&cli.DurationFlag{
				Name:    "call-timeout",
				Usage:   "Timeout for each RPC request",
				Value:   defaultCallTimeout,
				EnvVars: []string{config.EnvExtrinsicCallTimeout},
			},
			&cli.DurationFlag{
				Name:    "wait-timeout",
				Usage:   "Timeout for lifecycle notifications when watching",
				Value:   defaultWaitTimeout,
				EnvVars: []string{config.EnvExtrinsicWaitTimeout},
			},
			&cli.StringFlag{
				Name:    "journal",
				Usage:   "Submission journal backend (memory, badger, redis)",
				Value:   string(config.JournalTypeMemory),
				EnvVars: []string{config.EnvExtrinsicJournal},
			},
			&cli.StringFlag{
				Name:    "journal-path",
				Usage:   "Data directory of the badger journal",
				EnvVars: []string{config.EnvExtrinsicJournalPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Address (host:port) of the redis journal",
				EnvVars: []string{config.EnvExtrinsicRedisAddress},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvExtrinsicDebug},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "genesis-hash",
				Usage:  "Print the hash of block 0",
				Action: genesisHashCommand,
			},
			{
				Name:   "nonce",
				Usage:  "Print the sender account and its current nonce",
				Action: nonceCommand,
			},
			{
				Name:  "sudo-heap-pages",
				Usage: "Submit sudo(set_heap_pages(pages))",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "pages",
						Usage: "Number of heap pages",
						Value: defaultHeapPages,
					},
					watchFlag(),
				},
				Action: sudoHeapPagesCommand,
			},
			{
				Name:  "put-code",
				Usage: "Upload contract code (contract::put_code)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code-file",
						Usage:    "Path to the compiled contract",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "gas-limit",
						Usage: "Gas limit for the upload",
						Value: defaultGasLimit,
					},
					watchFlag(),
				},
				Action: putCodeCommand,
			},
			{
				Name:  "create-contract",
				Usage: "Instantiate uploaded code (contract::create)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code-hash",
						Usage:    "0x-prefixed 32-byte hash of the uploaded code",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "endowment",
						Usage: "Balance transferred to the new contract (decimal)",
						Value: "0",
					},
					&cli.Uint64Flag{
						Name:  "gas-limit",
						Usage: "Gas limit for instantiation",
						Value: defaultGasLimit,
					},
					&cli.StringFlag{
						Name:  "data",
						Usage: "0x-prefixed constructor input",
						Value: "0x",
					},
					watchFlag(),
				},
				Action: createContractCommand,
			},
			{
				Name:  "resume",
				Usage: "Resend a journaled extrinsic that still holds its nonce",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Submission id, as listed by the submissions command",
						Required: true,
					},
					watchFlag(),
				},
				Action: resumeCommand,
			},
			{
				Name:   "submissions",
				Usage:  "List the submissions recorded in the journal",
				Action: submissionsCommand,
			},
		},
	}
}

func watchFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "watch",
		Usage: "Wait for lifecycle updates until the extrinsic is finalized or dropped",
	}
}
