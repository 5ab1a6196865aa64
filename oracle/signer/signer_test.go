package signer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var (
	firstAccount = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

// ethService answers the eth_ namespace of an in-process node.
type ethService struct {
	mu       sync.Mutex
	received []sendTxArgs
	accounts []common.Address
}

func (s *ethService) SendTransaction(args sendTxArgs) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, args)
	return common.BytesToHash(args.Data), nil
}

func (s *ethService) Accounts() []common.Address {
	return s.accounts
}

type fakeBackend struct {
	mu       sync.Mutex
	nonces   map[common.Address]uint64
	sent     []*ethtypes.Transaction
	estimate error
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if b.estimate != nil {
		return 0, b.estimate
	}
	return 100_000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	b.nonces[from]++
	return nil
}

type SignerTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestSignerTestSuite(t *testing.T) {
	suite.Run(t, new(SignerTestSuite))
}

func (suite *SignerTestSuite) SetupTest() {
	suite.ctx = context.Background()
}

func (suite *SignerTestSuite) TestNodeSigner_Send() {
	service := &ethService{accounts: []common.Address{firstAccount}}
	server := rpc.NewServer()
	suite.Require().NoError(server.RegisterName("eth", service))
	defer server.Stop()
	client := rpc.DialInProc(server)
	defer client.Close()

	s := NewNodeSigner(client, GasSettings{Limit: 500_000, Price: big.NewInt(1)})

	hash, err := s.Send(suite.ctx, firstAccount, contractAddr, []byte{0xca, 0xfe})

	suite.Require().NoError(err)
	suite.Equal(common.BytesToHash([]byte{0xca, 0xfe}), hash)
	suite.Require().Len(service.received, 1)
	got := service.received[0]
	suite.Equal(firstAccount, got.From)
	suite.Equal(contractAddr, got.To)
	suite.Equal(hexutil.Uint64(500_000), *got.Gas)
	suite.Equal(int64(1), got.GasPrice.ToInt().Int64())

	accounts, err := s.Accounts(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal([]common.Address{firstAccount}, accounts)
}

func (suite *SignerTestSuite) TestWalletSigner_DerivesAccounts() {
	s, err := NewWalletSigner(&fakeBackend{}, big.NewInt(1337), GasSettings{}, testMnemonic, "m/44'/60'/0'/0", 3)
	suite.Require().NoError(err)

	accounts, err := s.Accounts(suite.ctx)

	suite.Require().NoError(err)
	suite.Len(accounts, 3)
	suite.Equal(firstAccount, accounts[0])
	suite.NotEqual(accounts[0], accounts[1])
}

func (suite *SignerTestSuite) TestWalletSigner_SignsAsFrom() {
	backend := &fakeBackend{nonces: map[common.Address]uint64{}}
	s, err := NewWalletSigner(backend, big.NewInt(1337), GasSettings{Limit: 120_000}, testMnemonic, "m/44'/60'/0'/0", 2)
	suite.Require().NoError(err)
	accounts, _ := s.Accounts(suite.ctx)

	for i := 0; i < 2; i++ {
		_, err := s.Send(suite.ctx, accounts[1], contractAddr, []byte{0x01})
		suite.Require().NoError(err)
	}

	suite.Require().Len(backend.sent, 2)
	for i, tx := range backend.sent {
		from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
		suite.Require().NoError(err)
		suite.Equal(accounts[1], from)
		suite.Equal(uint64(i), tx.Nonce())
		// 100k estimate with margin is capped by the limit
		suite.Equal(uint64(120_000), tx.Gas())
		suite.Equal(contractAddr, *tx.To())
	}
}

func (suite *SignerTestSuite) TestWalletSigner_UnknownAccount() {
	s, err := NewWalletSigner(&fakeBackend{}, big.NewInt(1337), GasSettings{}, testMnemonic, "m/44'/60'/0'/0", 1)
	suite.Require().NoError(err)

	_, err = s.Send(suite.ctx, common.HexToAddress("0xdead"), contractAddr, nil)

	suite.Require().Error(err)
	suite.True(errors.Is(err, types.ErrUnknownAccount))
}

func (suite *SignerTestSuite) TestWalletSigner_EstimateErrorReturned() {
	backend := &fakeBackend{nonces: map[common.Address]uint64{}, estimate: errors.New("execution reverted")}
	s, err := NewWalletSigner(backend, big.NewInt(1337), GasSettings{}, testMnemonic, "m/44'/60'/0'/0", 1)
	suite.Require().NoError(err)

	_, err = s.Send(suite.ctx, firstAccount, contractAddr, nil)

	suite.Require().EqualError(err, "execution reverted")
	suite.Empty(backend.sent)
}

func (suite *SignerTestSuite) TestWalletSigner_InvalidMnemonic() {
	_, err := NewWalletSigner(&fakeBackend{}, big.NewInt(1), GasSettings{}, "not a mnemonic", "m/44'/60'/0'/0", 1)

	suite.Require().Error(err)
	suite.True(errors.Is(err, types.ErrInvalidConfig))
}

func TestGasWithMargin(t *testing.T) {
	require.Equal(t, uint64(130), gasWithMargin(100, 0))
	require.Equal(t, uint64(120), gasWithMargin(100, 120))
	require.Equal(t, uint64(130), gasWithMargin(100, 500))
}
