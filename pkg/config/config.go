package config

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the extrinsic client
const (
	EnvExtrinsicWsURL         = "EXTRINSIC_WS_URL"
	EnvExtrinsicSeed          = "EXTRINSIC_SEED"
	EnvExtrinsicProtocol      = "EXTRINSIC_PROTOCOL"
	EnvExtrinsicSignThreshold = "EXTRINSIC_SIGN_THRESHOLD"
	EnvExtrinsicCallTimeout   = "EXTRINSIC_CALL_TIMEOUT"
	EnvExtrinsicWaitTimeout   = "EXTRINSIC_WAIT_TIMEOUT"
	EnvExtrinsicJournal       = "EXTRINSIC_JOURNAL"
	EnvExtrinsicJournalPath   = "EXTRINSIC_JOURNAL_PATH"
	EnvExtrinsicRedisAddress  = "EXTRINSIC_REDIS_ADDRESS"
	EnvExtrinsicDebug         = "EXTRINSIC_DEBUG"
)

// ProtocolVersion selects the extrinsic wire format spoken by the target node.
// The two node generations differ in the arity of the signing payload and of the
// signed tuple: the tagged format appends a compact format-version field to both.
type ProtocolVersion string

func (p ProtocolVersion) String() string {
	return string(p)
}

const (
	ProtocolVersionClassic ProtocolVersion = "classic"
	ProtocolVersionTagged  ProtocolVersion = "tagged"
)

func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch ProtocolVersion(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolVersionClassic:
		return ProtocolVersionClassic, nil
	case ProtocolVersionTagged:
		return ProtocolVersionTagged, nil
	default:
		return "", fmt.Errorf("unsupported protocol version: %q (supported: %s)", s, GetSupportedProtocolVersionsString())
	}
}

func GetSupportedProtocolVersionsString() string {
	return fmt.Sprintf("%s, %s", ProtocolVersionClassic, ProtocolVersionTagged)
}

// Protocol constants copied from the node. They are pinned to a node build and are
// only defaults: every one of them can be overridden through ProtocolParams.
const (
	DefaultSignThreshold       = 256
	DefaultExtrinsicVersion    = 1
	DefaultPayloadFormatTag    = 1
	DefaultNonceStoragePrefix  = "System AccountNonce"
	DefaultMaxCodeSize         = 16 * 1024 * 1024
	DefaultNotificationBacklog = 100
)

// CallIndex addresses a dispatchable: the module's position in the runtime's outer
// call enum, then the function's position inside the module.
type CallIndex struct {
	Module uint8 `json:"module" yaml:"module"`
	Call   uint8 `json:"call" yaml:"call"`
}

func (c CallIndex) String() string {
	return fmt.Sprintf("%d.%d", c.Module, c.Call)
}

// CallIndexTable maps every call this client can build to its runtime indices.
type CallIndexTable struct {
	Sudo         CallIndex `json:"sudo" yaml:"sudo"`
	SetHeapPages CallIndex `json:"setHeapPages" yaml:"setHeapPages"`
	PutCode      CallIndex `json:"putCode" yaml:"putCode"`
	Create       CallIndex `json:"create" yaml:"create"`
}

// DefaultCallIndexTable matches the reference node runtime
// (System, Timestamp, Consensus, ..., Contract, Sudo).
var DefaultCallIndexTable = CallIndexTable{
	Sudo:         CallIndex{Module: 14, Call: 0},
	SetHeapPages: CallIndex{Module: 2, Call: 3},
	PutCode:      CallIndex{Module: 13, Call: 1},
	Create:       CallIndex{Module: 13, Call: 3},
}

func (t CallIndexTable) Validate() error {
	var allErrors field.ErrorList
	seen := map[CallIndex]string{}
	entries := []struct {
		name  string
		index CallIndex
	}{
		{"sudo", t.Sudo},
		{"setHeapPages", t.SetHeapPages},
		{"putCode", t.PutCode},
		{"create", t.Create},
	}
	for _, e := range entries {
		if other, ok := seen[e.index]; ok {
			allErrors = append(allErrors, field.Duplicate(field.NewPath("callIndices", e.name), fmt.Sprintf("%s (also used by %s)", e.index, other)))
			continue
		}
		seen[e.index] = e.name
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ProtocolParams is everything the builder and the storage key codec need to agree
// with a specific node build.
type ProtocolParams struct {
	Version ProtocolVersion `json:"version" yaml:"version"`

	// SignThreshold is the largest payload signed directly; longer payloads are
	// hashed with blake2b-256 and the digest is signed. Zero selects the version's
	// own rule: classic hashes above DefaultSignThreshold, tagged never hashes.
	SignThreshold int `json:"signThreshold" yaml:"signThreshold"`

	// ExtrinsicVersion is the low seven bits of the extrinsic's leading byte.
	ExtrinsicVersion uint8 `json:"extrinsicVersion" yaml:"extrinsicVersion"`

	// PayloadFormatTag is the trailing compact field of the tagged format.
	PayloadFormatTag uint32 `json:"payloadFormatTag" yaml:"payloadFormatTag"`

	NonceStoragePrefix string         `json:"nonceStoragePrefix" yaml:"nonceStoragePrefix"`
	CallIndices        CallIndexTable `json:"callIndices" yaml:"callIndices"`
}

// DefaultProtocolParams returns the parameters for the given protocol version with
// every other field at its default.
func DefaultProtocolParams(version ProtocolVersion) ProtocolParams {
	return ProtocolParams{
		Version:            version,
		SignThreshold:      DefaultSignThresholdFor(version),
		ExtrinsicVersion:   DefaultExtrinsicVersion,
		PayloadFormatTag:   DefaultPayloadFormatTag,
		NonceStoragePrefix: DefaultNonceStoragePrefix,
		CallIndices:        DefaultCallIndexTable,
	}
}

// DefaultSignThresholdFor is the threshold a node of the given version applies when
// verifying; zero means the payload is always signed as is.
func DefaultSignThresholdFor(version ProtocolVersion) int {
	if version == ProtocolVersionTagged {
		return 0
	}
	return DefaultSignThreshold
}

func (p *ProtocolParams) Validate() error {
	var allErrors field.ErrorList
	if _, err := ParseProtocolVersion(string(p.Version)); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("version"), p.Version, []string{
			string(ProtocolVersionClassic), string(ProtocolVersionTagged),
		}))
	}
	if p.SignThreshold < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signThreshold"), p.SignThreshold, "must not be negative"))
	}
	if p.ExtrinsicVersion > 0x7f {
		allErrors = append(allErrors, field.Invalid(field.NewPath("extrinsicVersion"), p.ExtrinsicVersion, "must fit in 7 bits"))
	}
	if p.NonceStoragePrefix == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("nonceStoragePrefix"), "nonceStoragePrefix is required"))
	}
	if err := p.CallIndices.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("callIndices"), p.CallIndices, err.Error()))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type JournalType string

const (
	JournalTypeMemory JournalType = "memory"
	JournalTypeBadger JournalType = "badger"
	JournalTypeRedis  JournalType = "redis"
)

// SubmitterConfig is the complete configuration of one client run
type SubmitterConfig struct {
	WsURL string `json:"wsUrl" yaml:"wsUrl"`

	// Seed is a raw, test-only seed string (see keystore.DeriveKeypair)
	Seed string `json:"seed" yaml:"seed"`

	Protocol ProtocolParams `json:"protocol" yaml:"protocol"`

	// CallTimeout bounds every request/response RPC
	CallTimeout time.Duration `json:"callTimeout" yaml:"callTimeout"`

	// WaitTimeout bounds the wait for subscription notifications; zero waits until the context ends
	WaitTimeout time.Duration `json:"waitTimeout" yaml:"waitTimeout"`

	NotificationBacklog int `json:"notificationBacklog" yaml:"notificationBacklog"`

	Journal      JournalType `json:"journal" yaml:"journal"`
	JournalPath  string      `json:"journalPath" yaml:"journalPath"`
	RedisAddress string      `json:"redisAddress" yaml:"redisAddress"`

	Debug bool `json:"debug" yaml:"debug"`
}

// ApplyDefaults fills the optional fields left at their zero value
func (c *SubmitterConfig) ApplyDefaults() {
	if c.Journal == "" {
		c.Journal = JournalTypeMemory
	}
	if c.NotificationBacklog == 0 {
		c.NotificationBacklog = DefaultNotificationBacklog
	}
}

// Validate checks the configuration without modifying it; an empty journal type
// means memory.
func (c *SubmitterConfig) Validate() error {
	var allErrors field.ErrorList
	if c.WsURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("wsUrl"), "wsUrl is required"))
	} else if !strings.HasPrefix(c.WsURL, "ws://") && !strings.HasPrefix(c.WsURL, "wss://") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("wsUrl"), c.WsURL, "must start with ws:// or wss://"))
	}
	if err := c.Protocol.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("protocol"), c.Protocol.Version, err.Error()))
	}
	if c.CallTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("callTimeout"), c.CallTimeout.String(), "must not be negative"))
	}
	if c.WaitTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("waitTimeout"), c.WaitTimeout.String(), "must not be negative"))
	}
	if c.NotificationBacklog < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("notificationBacklog"), c.NotificationBacklog, "must not be negative"))
	}

	switch c.Journal {
	case "", JournalTypeMemory:
	case JournalTypeBadger:
		if c.JournalPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("journalPath"), "journalPath is required for the badger journal"))
		}
	case JournalTypeRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for the redis journal"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("journal"), c.Journal, []string{
			string(JournalTypeMemory), string(JournalTypeBadger), string(JournalTypeRedis),
		}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
