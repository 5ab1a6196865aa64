package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// WalletSigner signs locally with keys derived from a BIP-39 mnemonic, the way the
// development chain derives its funded accounts.
type WalletSigner struct {
	backend  TxBackend
	chainID  *big.Int
	gas      GasSettings
	keys     map[common.Address]*ecdsa.PrivateKey
	accounts []common.Address
	// one lock per account keeps nonces of the same oracle sequential
	nonceLocks cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewWalletSigner derives count accounts at <basePath>/0 .. <basePath>/count-1.
func NewWalletSigner(backend TxBackend, chainID *big.Int, gas GasSettings, mnemonic, basePath string, count int) (*WalletSigner, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfig, "mnemonic: %v", err)
	}

	s := &WalletSigner{
		backend:    backend,
		chainID:    chainID,
		gas:        gas,
		keys:       make(map[common.Address]*ecdsa.PrivateKey, count),
		accounts:   make([]common.Address, 0, count),
		nonceLocks: cmap.New[*sync.Mutex](),
	}

	for i := 0; i < count; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf("%s/%d", basePath, i))
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrInvalidConfig, "derivation path %s: %v", basePath, err)
		}
		account, err := wallet.Derive(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to derive account %d: %w", i, err)
		}
		key, err := wallet.PrivateKey(account)
		if err != nil {
			return nil, fmt.Errorf("failed to get private key %d: %w", i, err)
		}
		s.keys[account.Address] = key
		s.accounts = append(s.accounts, account.Address)
	}

	return s, nil
}

func (s *WalletSigner) Accounts(context.Context) ([]common.Address, error) {
	return append([]common.Address{}, s.accounts...), nil
}

func (s *WalletSigner) Send(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	key, ok := s.keys[from]
	if !ok {
		return common.Hash{}, errorsmod.Wrapf(types.ErrUnknownAccount, "%s", from.Hex())
	}

	lock := s.nonceLocks.Upsert(from.Hex(), nil, func(exist bool, current, _ *sync.Mutex) *sync.Mutex {
		if exist {
			return current
		}
		return new(sync.Mutex)
	})
	lock.Lock()
	defer lock.Unlock()

	estimate, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := s.gas.Price
	if gasPrice == nil {
		if gasPrice, err = s.backend.SuggestGasPrice(ctx); err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
		}
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasWithMargin(estimate, s.gas.Limit),
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	return signed.Hash(), nil
}
