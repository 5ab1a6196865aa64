package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

const (
	FileName = "config.toml"

	SignerModeNode     = "node"
	SignerModeMnemonic = "mnemonic"
)

var (
	home         string
	globalConfig configData
	mu           sync.RWMutex
)

type configData struct {
	Chain     chainConfig     `toml:"chain"`
	Contract  contractConfig  `toml:"contract"`
	Signer    signerConfig    `toml:"signer"`
	Gas       gasConfig       `toml:"gas"`
	Registry  registryConfig  `toml:"registry"`
	Listener  listenerConfig  `toml:"listener"`
	Evaluator evaluatorConfig `toml:"evaluator"`
	Server    serverConfig    `toml:"server"`
	Log       logConfig       `toml:"log"`
}

type chainConfig struct {
	Endpoint string `toml:"endpoint"`
	ChainID  uint64 `toml:"chain_id"`
}

type contractConfig struct {
	Address    string `toml:"address"`
	StartBlock uint64 `toml:"start_block"`
}

type signerConfig struct {
	Mode           string `toml:"mode"`
	Mnemonic       string `toml:"mnemonic"`
	Accounts       int    `toml:"accounts"`
	DerivationPath string `toml:"derivation_path"`
}

type gasConfig struct {
	Limit uint64 `toml:"limit"`
	Price string `toml:"price"`
}

type registryConfig struct {
	Dir         string `toml:"dir"`
	BatchBlocks uint64 `toml:"batch_blocks"`
	Verify      bool   `toml:"verify"`
}

type listenerConfig struct {
	QueueSize         int    `toml:"queue_size"`
	Workers           int    `toml:"workers"`
	SubmitConcurrency int    `toml:"submit_concurrency"`
	ReceiptTimeout    string `toml:"receipt_timeout"`
	BackoffBase       string `toml:"backoff_base"`
	BackoffMax        string `toml:"backoff_max"`
}

type evaluatorConfig struct {
	AirlineDelay uint64 `toml:"airline_delay"`
}

type serverConfig struct {
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
}

type logConfig struct {
	Level string `toml:"level"`
}

func defaultConfig(home string) configData {
	return configData{
		Chain: chainConfig{
			Endpoint: "ws://127.0.0.1:7545",
			ChainID:  0,
		},
		Contract: contractConfig{
			Address:    "",
			StartBlock: 0,
		},
		Signer: signerConfig{
			Mode:           SignerModeNode,
			Accounts:       30,
			DerivationPath: "m/44'/60'/0'/0",
		},
		Gas: gasConfig{
			Limit: 500000,
			Price: "",
		},
		Registry: registryConfig{
			Dir:         filepath.Join(home, "data"),
			BatchBlocks: 5000,
			Verify:      false,
		},
		Listener: listenerConfig{
			QueueSize:         1 << 10,
			Workers:           4,
			SubmitConcurrency: 8,
			ReceiptTimeout:    "1m",
			BackoffBase:       "1s",
			BackoffMax:        "1m",
		},
		Evaluator: evaluatorConfig{
			AirlineDelay: 3000,
		},
		Server: serverConfig{
			Listen:      ":3000",
			CORSOrigins: []string{"*"},
		},
		Log: logConfig{
			Level: "info",
		},
	}
}

// Load reads <homeDir>/config.toml, writing a default one first if none exists.
func Load(homeDir string) error {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	path := filepath.Join(homeDir, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(homeDir); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	loaded := defaultConfig(homeDir)
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := validateConfig(loaded); err != nil {
		return err
	}

	mu.Lock()
	home = homeDir
	globalConfig = loaded
	mu.Unlock()

	log.Infof("Loaded config from %s", path)
	return nil
}

// DefaultHome is ~/.oracled.
func DefaultHome() string {
	osHome, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get user home directory: %v", err)
	}

	return filepath.Join(osHome, ".oracled")
}

// WriteDefault writes a config file with default values into homeDir.
func WriteDefault(homeDir string) error {
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", homeDir, err)
	}

	data, err := toml.Marshal(defaultConfig(homeDir))
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(filepath.Join(homeDir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(c configData) error {
	if c.Chain.Endpoint == "" {
		return errorsmod.Wrap(types.ErrInvalidConfig, "chain endpoint is required")
	}

	if c.Contract.Address != "" && !common.IsHexAddress(c.Contract.Address) {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "contract address %q is not a hex address", c.Contract.Address)
	}

	switch c.Signer.Mode {
	case SignerModeNode:
	case SignerModeMnemonic:
		if !bip39.IsMnemonicValid(c.Signer.Mnemonic) {
			return errorsmod.Wrap(types.ErrInvalidConfig, "signer mnemonic is not a valid BIP-39 mnemonic")
		}
		if c.Signer.Accounts <= 0 {
			return errorsmod.Wrap(types.ErrInvalidConfig, "signer accounts must be positive")
		}
	default:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "unknown signer mode %q", c.Signer.Mode)
	}

	if c.Gas.Limit == 0 {
		return errorsmod.Wrap(types.ErrInvalidConfig, "gas limit is required")
	}

	if c.Gas.Price != "" {
		if _, ok := new(big.Int).SetString(c.Gas.Price, 10); !ok {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "gas price %q is not a decimal wei amount", c.Gas.Price)
		}
	}

	if c.Registry.Dir == "" {
		return errorsmod.Wrap(types.ErrInvalidConfig, "registry directory is required")
	}

	if c.Listener.QueueSize <= 0 || c.Listener.Workers <= 0 || c.Listener.SubmitConcurrency <= 0 {
		return errorsmod.Wrap(types.ErrInvalidConfig, "listener queue_size, workers and submit_concurrency must be positive")
	}

	for name, value := range map[string]string{
		"receipt_timeout": c.Listener.ReceiptTimeout,
		"backoff_base":    c.Listener.BackoffBase,
		"backoff_max":     c.Listener.BackoffMax,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "listener %s %q is not a positive duration", name, value)
		}
	}

	return nil
}

func Print() {
	log.Infof("%-18s: %s", "Home", Home())
	log.Infof("%-18s: %s", "Chain Endpoint", ChainEndpoint())
	log.Infof("%-18s: %d", "Chain ID", ChainID())
	log.Infof("%-18s: %s", "Contract", ContractAddress().Hex())
	log.Infof("%-18s: %d", "Start Block", StartBlock())
	log.Infof("%-18s: %s", "Signer Mode", SignerMode())
	log.Infof("%-18s: %s", "Registry Dir", RegistryDir())
	log.Infof("%-18s: %d", "Gas Limit", GasLimit())
	log.Infof("%-18s: %s", "Server Listen", ServerListen())
}

func read() configData {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

func Home() string {
	mu.RLock()
	defer mu.RUnlock()
	return home
}

func ChainEndpoint() string {
	return read().Chain.Endpoint
}

// ChainID returns the configured chain id, 0 meaning "ask the node".
func ChainID() uint64 {
	return read().Chain.ChainID
}

func ContractAddress() common.Address {
	return common.HexToAddress(read().Contract.Address)
}

func StartBlock() uint64 {
	return read().Contract.StartBlock
}

func SignerMode() string {
	return read().Signer.Mode
}

func Mnemonic() string {
	return strings.TrimSpace(read().Signer.Mnemonic)
}

func SignerAccounts() int {
	return read().Signer.Accounts
}

func DerivationPath() string {
	return read().Signer.DerivationPath
}

func GasLimit() uint64 {
	return read().Gas.Limit
}

// GasPrice returns the fixed gas price in wei or nil when the node should suggest one.
func GasPrice() *big.Int {
	price := read().Gas.Price
	if price == "" {
		return nil
	}
	v, _ := new(big.Int).SetString(price, 10)
	return v
}

func RegistryDir() string {
	return read().Registry.Dir
}

func BackfillBatchBlocks() uint64 {
	return read().Registry.BatchBlocks
}

func VerifyBackfill() bool {
	return read().Registry.Verify
}

func QueueSize() int {
	return read().Listener.QueueSize
}

func Workers() int {
	return read().Listener.Workers
}

func SubmitConcurrency() int {
	return read().Listener.SubmitConcurrency
}

func ReceiptTimeout() time.Duration {
	return mustDuration(read().Listener.ReceiptTimeout)
}

func BackoffBase() time.Duration {
	return mustDuration(read().Listener.BackoffBase)
}

func BackoffMax() time.Duration {
	return mustDuration(read().Listener.BackoffMax)
}

func AirlineDelay() uint64 {
	return read().Evaluator.AirlineDelay
}

func ServerListen() string {
	return read().Server.Listen
}

func CORSOrigins() []string {
	return read().Server.CORSOrigins
}

func LogLevel() string {
	return read().Log.Level
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// SetForTesting replaces the loaded config with defaults rooted at homeDir,
// pointing at the given endpoint and contract.
func SetForTesting(homeDir, endpoint, contract string) {
	c := defaultConfig(homeDir)
	c.Chain.Endpoint = endpoint
	c.Contract.Address = contract

	mu.Lock()
	home = homeDir
	globalConfig = c
	mu.Unlock()
}
