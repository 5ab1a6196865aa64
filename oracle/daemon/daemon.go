package daemon

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/flight-oracle/oracle/config"
	"github.com/GPTx-global/flight-oracle/oracle/consult"
	"github.com/GPTx-global/flight-oracle/oracle/evaluator"
	"github.com/GPTx-global/flight-oracle/oracle/health"
	"github.com/GPTx-global/flight-oracle/oracle/listener"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/registry"
	"github.com/GPTx-global/flight-oracle/oracle/retry"
	"github.com/GPTx-global/flight-oracle/oracle/server"
	"github.com/GPTx-global/flight-oracle/oracle/signer"
	"github.com/GPTx-global/flight-oracle/oracle/submitter"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

const healthInterval = 30 * time.Second

type Daemon struct {
	rpcClient *rpc.Client
	client    *ethclient.Client

	signer     signer.Signer
	store      *registry.Store
	backfiller *registry.Backfiller
	consultant *consult.Consultant
	listener   *listener.Listener
	health     *health.Checker
	sink       *metrics.InmemSink

	ctx context.Context
}

// New dials the node, opens the registry and wires every component from the loaded config.
func New(ctx context.Context) (*Daemon, error) {
	if config.ContractAddress() == (common.Address{}) {
		return nil, errorsmod.Wrap(types.ErrInvalidConfig, "contract address is not set")
	}

	d := new(Daemon)
	d.ctx = ctx

	rpcClient, err := rpc.DialContext(ctx, config.ChainEndpoint())
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrTransport, "dial %s: %v", config.ChainEndpoint(), err)
	}
	d.rpcClient = rpcClient
	d.client = ethclient.NewClient(rpcClient)

	s, err := d.newSigner()
	if err != nil {
		d.rpcClient.Close()
		return nil, err
	}
	d.signer = s

	store, err := registry.Open(config.RegistryDir())
	if err != nil {
		d.rpcClient.Close()
		return nil, err
	}
	d.store = store

	d.sink = metrics.NewInmemSink(10*time.Second, time.Minute)
	metricsConfig := metrics.DefaultConfig("oracled")
	metricsConfig.EnableHostname = false
	if _, err := metrics.NewGlobal(metricsConfig, d.sink); err != nil {
		d.Stop()
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	contractAddr := config.ContractAddress()
	sub := submitter.New(s, d.client, contractAddr, config.ReceiptTimeout(), config.SubmitConcurrency())
	d.consultant = consult.New(d.store, evaluator.New(config.AirlineDelay()), sub)
	d.backfiller = registry.NewBackfiller(d.store, d.client, contractAddr,
		config.StartBlock(), config.BackfillBatchBlocks(), config.VerifyBackfill())
	d.listener = listener.New(d.client, contractAddr, d.consultant, d.store, listener.Config{
		QueueSize:   config.QueueSize(),
		Workers:     config.Workers(),
		BackoffBase: config.BackoffBase(),
		BackoffMax:  config.BackoffMax(),
	})

	d.health = health.NewChecker(healthInterval)
	d.health.AddCheck(health.NewFuncCheck("rpc", func(ctx context.Context) error {
		_, err := d.client.BlockNumber(ctx)
		return err
	}))
	d.health.AddCheck(health.NewFuncCheck("listener", func(context.Context) error {
		if state := d.listener.State(); state != listener.Subscribed {
			return fmt.Errorf("listener is %s", state)
		}
		return nil
	}))

	return d, nil
}

func (d *Daemon) newSigner() (signer.Signer, error) {
	gas := signer.GasSettings{Limit: config.GasLimit(), Price: config.GasPrice()}

	switch config.SignerMode() {
	case config.SignerModeMnemonic:
		chainID := new(big.Int).SetUint64(config.ChainID())
		if chainID.Sign() == 0 {
			id, err := d.client.ChainID(d.ctx)
			if err != nil {
				return nil, errorsmod.Wrapf(types.ErrTransport, "chain id: %v", err)
			}
			chainID = id
		}
		return signer.NewWalletSigner(d.client, chainID, gas, config.Mnemonic(), config.DerivationPath(), config.SignerAccounts())
	default:
		return signer.NewNodeSigner(d.rpcClient, gas), nil
	}
}

// Backfill replays the registrations, retrying transient node errors.
func (d *Daemon) Backfill() (registry.BackfillResult, error) {
	var res registry.BackfillResult
	err := retry.Do(d.ctx, retry.DefaultConfig(), func() error {
		var err error
		res, err = d.backfiller.Backfill(d.ctx)
		return err
	}, isTransport)
	if err != nil {
		return res, err
	}

	log.Infof("registry backfilled: %d events from block %d to %d, %d skipped, %d corrected",
		res.Events, res.FromBlock, res.Head, res.Skipped, res.Corrected)
	return res, nil
}

// isTransport retries every failure talking to the node; storage and decode errors are final.
func isTransport(err error) bool {
	return errors.Is(err, types.ErrTransport) || retry.IsTransient(err)
}

// Consult answers a single request with the registered oracles.
func (d *Daemon) Consult(req types.StatusRequest) (submitter.Report, error) {
	return d.consultant.Consult(d.ctx, req)
}

// Start rebuilds the registry from the chain before anything subscribes.
func (d *Daemon) Start() error {
	if _, err := d.Backfill(); err != nil {
		return fmt.Errorf("failed to backfill registry: %w", err)
	}

	oracles, err := d.store.GetAll()
	if err != nil {
		return err
	}
	log.Infof("%d oracles registered", len(oracles))

	d.warnUnsignable(oracles)
	return nil
}

// warnUnsignable logs every registered oracle the signer holds no key for. Their
// submissions always end as transport failures.
func (d *Daemon) warnUnsignable(oracles []types.Oracle) []common.Address {
	accounts, err := d.signer.Accounts(d.ctx)
	if err != nil {
		log.Warnf("failed to list signer accounts: %v", err)
		return nil
	}

	known := make(map[common.Address]struct{}, len(accounts))
	for _, addr := range accounts {
		known[addr] = struct{}{}
	}

	var missing []common.Address
	for _, oracle := range oracles {
		if _, ok := known[oracle.Address]; !ok {
			missing = append(missing, oracle.Address)
		}
	}
	if len(missing) > 0 {
		log.Warnf("%d of %d registered oracles cannot be signed for: %v", len(missing), len(oracles), missing)
	}
	return missing
}

// Run serves the listener, the admin server and the health checker until ctx is done or
// one of them fails.
func (d *Daemon) Run() error {
	g, ctx := errgroup.WithContext(d.ctx)

	g.Go(func() error {
		return d.listener.Run(ctx)
	})
	g.Go(func() error {
		srv := server.New(d.backfiller, d.consultant, d.store, d.sink, d.health, config.CORSOrigins())
		return srv.Serve(ctx, config.ServerListen())
	})
	g.Go(func() error {
		d.health.Start(ctx)
		return nil
	})

	return g.Wait()
}

// Stop releases the node connection and closes the registry.
func (d *Daemon) Stop() {
	if d.rpcClient != nil {
		d.rpcClient.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Errorf("failed to close registry: %v", err)
		}
	}
}
