package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"fiatramp/internal/apiclient"
	"fiatramp/internal/chain"
	"fiatramp/internal/clients"
	"fiatramp/internal/config"
	"fiatramp/internal/conversion"
	"fiatramp/internal/escrow"
	"fiatramp/internal/events"
	"fiatramp/internal/handlers"
	"fiatramp/internal/lifecycle"
	"fiatramp/internal/middleware"
	"fiatramp/internal/router"
	"fiatramp/internal/session"
	"fiatramp/internal/store"
)

// ServiceContainer wires every service of the settlement core.
type ServiceContainer struct {
	Logger *logrus.Logger

	// Storage
	Makers   *store.Store
	Sessions *session.Store

	// Chain access
	ChainReader chain.Reader
	ChainWriter chain.Writer

	// Clients
	Curator *apiclient.Client
	LiFi    *clients.LiFiClient
	Events  *events.Publisher

	// Engines
	QuoteEngine *conversion.Engine

	// Lifecycle
	State       *lifecycle.Store
	Deposits    *lifecycle.DepositMachine
	Signals     *lifecycle.SignalMachine
	Fulfillment *lifecycle.FulfillmentMachine
	Maintenance *lifecycle.MaintenanceMachine
	Poller      *lifecycle.Poller

	// HTTP
	Handlers router.Handlers

	gatingKey *ecdsa.PrivateKey

	mu         sync.Mutex
	depositIDs []*big.Int
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once from the loaded config.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error
	containerOnce.Do(func() {
		Container, initErr = newContainer()
	})
	if initErr != nil {
		return nil, initErr
	}
	return Container, nil
}

func newContainer() (*ServiceContainer, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	c := &ServiceContainer{Logger: logger}

	makers, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open maker store: %w", err)
	}
	c.Makers = makers
	c.Sessions = session.NewStore()

	eth, err := chain.NewEthClient(context.Background(), chain.EthClientConfig{
		RPCURL:         cfg.Chain.RPCURL,
		EscrowContract: cfg.Chain.EscrowContract,
		PrivateKeyHex:  cfg.Chain.PrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("chain client: %w", err)
	}
	c.ChainReader = eth
	c.ChainWriter = eth

	c.Curator = apiclient.NewClient(cfg.Curator.BaseURL, logger)
	c.LiFi = clients.NewLiFiClient(cfg.Bridge.LiFiBaseURL)

	publisher, err := events.NewPublisher(cfg.NATS, logger)
	if err != nil {
		logger.WithField("error", err).Warn("NATS unavailable, events disabled")
	}
	c.Events = publisher

	c.QuoteEngine = conversion.NewEngine(c.LiFi, logger)

	verifiers := make(map[string]string, len(cfg.Chain.Verifiers))
	for platformID, addr := range cfg.Chain.Verifiers {
		key := strings.ToLower(platformID)
		verifiers[key] = addr
		lifecycle.RegisterPlatformVerifier(key, addr)
	}

	gatingKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("gating key: %w", err)
	}
	c.gatingKey = gatingKey

	owner := crypto.PubkeyToAddress(gatingKey.PublicKey).Hex()

	minDeposit, ok := new(big.Int).SetString(cfg.Ramp.MinDepositAmount, 10)
	if !ok {
		return nil, fmt.Errorf("malformed minDepositAmount %q", cfg.Ramp.MinDepositAmount)
	}

	intentTTL := time.Duration(cfg.Chain.IntentTTLSeconds) * time.Second
	pollInterval := time.Duration(cfg.Chain.PollIntervalSeconds) * time.Second

	c.State = lifecycle.NewStore()
	c.Poller = lifecycle.NewPoller(c.State, c.ChainReader, logger, owner, c.watchedDepositIDs, pollInterval)
	refresh := func() { go c.Poller.RefreshNow(context.Background()) }

	var eventsSink lifecycle.Publisher
	if c.Events != nil {
		eventsSink = c.Events
	}

	c.Deposits = lifecycle.NewDepositMachine(lifecycle.DepositMachineConfig{
		Store:      c.State,
		Reader:     c.ChainReader,
		Writer:     c.ChainWriter,
		Curator:    c.Curator,
		Events:     eventsSink,
		Logger:     logger,
		Owner:      owner,
		Token:      cfg.Chain.USDCContract,
		EscrowAddr: cfg.Chain.EscrowContract,
		MinDeposit: minDeposit,
		Gating:     cfg.Chain.GatingService,
		OnSuccess:  refresh,
	})
	c.Signals = lifecycle.NewSignalMachine(c.State, c.ChainWriter, c.Curator, eventsSink, logger)
	c.Fulfillment = lifecycle.NewFulfillmentMachine(c.State, c.ChainReader, c.ChainWriter, c.Curator, eventsSink, logger, owner, intentTTL)
	c.Maintenance = lifecycle.NewMaintenanceMachine(c.State, c.ChainWriter, logger, refresh)

	adminAuth := middleware.NewAdminAuth(logger, cfg.Admin)
	c.Handlers = router.Handlers{
		Quote:     handlers.NewQuoteHandler(c.QuoteEngine, c.depositSnapshot, logger),
		Intent:    handlers.NewIntentHandler(c.Makers, gatingKey, verifierFor(verifiers), logger),
		Maker:     handlers.NewMakerHandler(c.Makers, logger),
		AdminAuth: handlers.NewAdminAuthHandler(adminAuth, logger),
		Session:   handlers.NewSessionHandler(c.Sessions, logger),
		Admin:     adminAuth,
	}

	return c, nil
}

func verifierFor(verifiers map[string]string) func(string) string {
	return func(platformID string) string {
		return verifiers[strings.ToLower(platformID)]
	}
}

// WatchDeposit adds a deposit id to the polled set.
func (c *ServiceContainer) WatchDeposit(id *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.depositIDs {
		if existing.Cmp(id) == 0 {
			return
		}
	}
	c.depositIDs = append(c.depositIDs, new(big.Int).Set(id))
}

func (c *ServiceContainer) watchedDepositIDs() []*big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*big.Int(nil), c.depositIDs...)
}

// depositSnapshot reads the polled deposit views out of the state container.
func (c *ServiceContainer) depositSnapshot() []escrow.DepositView {
	views, _ := c.State.GetState(lifecycle.KeyDepositViews).([]escrow.DepositView)
	return views
}

// Shutdown releases container resources.
func (c *ServiceContainer) Shutdown() {
	if c.Events != nil {
		c.Events.Close()
	}
}
