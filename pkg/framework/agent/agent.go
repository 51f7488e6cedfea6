/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agent assembles the protocol services, the wallet, the ledger and the transports into one agent that
// receives packed envelopes and routes them to the protocol owning their message family.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/messenger"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/issuecredential"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/presentproof"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/registry"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/revocationnotification"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger/storeledger"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/store/protocolstate"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet/localwallet"
)

var logger = log.New("aries-framework/agent")

const (
	defaultLabel          = "aries-protocol-engine"
	defaultProtocolTimout = 10 * time.Minute
	defaultPickupLimit    = messagepickup.DefaultLimit
)

// Agent provides access to the protocol services and receives the envelopes of the inbound transports.
type Agent struct {
	storeProvider  storage.Provider
	ownsStore      bool
	wallet         wallet.Wallet
	read           ledger.Read
	write          ledger.Write
	anoncreds      anoncreds.AnonCreds
	outbounds      []transport.Outbound
	mediatorStore  mediatorstore.Persistence
	grantPolicy    *mediator.GrantPolicy
	label          string
	endpoint       string
	routingKeys    []string
	routingSeed    []byte
	returnRoute    string
	timeout        time.Duration
	sweepInterval  time.Duration
	pickupInterval time.Duration
	pickupLimit    int
	cacheOpts      []ledger.CacheOpt
	autoIssue      bool
	autoPresent    bool
	runnerOpts     []runner.Opt

	messenger       *messenger.Messenger
	journal         *protocolstate.Journal
	adapter         *service.VersionAdapter
	sweeper         *registry.Sweeper
	poller          *gocron.Scheduler
	handlers        []service.InboundHandler
	connections     *connection.Service
	credentials     *issuecredential.Service
	proofs          *presentproof.Service
	revocations     *revocationnotification.Service
	mediator        *mediator.Service
	mediationClient *mediator.Client
	pickup          *messagepickup.Service
}

// Option configures the agent.
type Option func(opts *Agent) error

// New creates an agent from opts. The sweeper and the pickup poller only run after Start.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{
		label:       defaultLabel,
		timeout:     defaultProtocolTimout,
		pickupLimit: defaultPickupLimit,
	}

	for _, option := range opts {
		if err := option(a); err != nil {
			return nil, fmt.Errorf("error in option passed to New: %w", err)
		}
	}

	if err := defAgentOpts(a); err != nil {
		return nil, fmt.Errorf("default option initialization failed: %w", err)
	}

	if err := initializeServices(a); err != nil {
		closeErr := a.Close()

		return nil, fmt.Errorf("initialize agent: %w (close: %v)", err, closeErr)
	}

	return a, nil
}

func defAgentOpts(a *Agent) error {
	if a.storeProvider == nil {
		a.storeProvider = mem.NewProvider()
		a.ownsStore = true
	}

	if a.wallet == nil {
		w, err := localwallet.New(a.storeProvider)
		if err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}

		a.wallet = w
	}

	if a.read == nil {
		l, err := storeledger.New(a.storeProvider)
		if err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}

		a.read, a.write = l, l
	}

	a.read = ledger.NewCachedReader(a.read, a.cacheOpts...)

	return nil
}

func initializeServices(a *Agent) error {
	// Order of initializing services is important: the messenger needs the wallet and the runners need the
	// messenger and the journal.
	journal, err := protocolstate.New(a.storeProvider)
	if err != nil {
		return fmt.Errorf("create protocol state journal: %w", err)
	}

	a.journal = journal

	msgOpts := []messenger.Opt{messenger.WithResponseHandler(a.Receive)}
	if a.returnRoute != "" {
		msgOpts = append(msgOpts, messenger.WithReturnRoute(a.returnRoute))
	}

	a.messenger = messenger.New(a.wallet, a.outbounds, msgOpts...)

	a.runnerOpts = append([]runner.Opt{
		runner.WithMessenger(a.messenger),
		runner.WithJournal(a.journal),
		runner.WithTimeout(a.timeout),
	}, a.runnerOpts...)

	if err = createMediator(a); err != nil {
		return err
	}

	if err = createCredentialServices(a); err != nil {
		return err
	}

	revocationConfig := revocationnotification.Config{}
	if a.credentials != nil {
		revocationConfig.Holdings = a.credentials
	}

	a.revocations = revocationnotification.New(revocationConfig, a.runnerOpts...)
	a.mediationClient = mediator.NewClient(mediator.ClientConfig{}, a.runnerOpts...)

	pickupOpts := []messagepickup.Opt{messagepickup.WithInboundHandler(a.Receive)}
	if a.mediatorStore != nil {
		pickupOpts = append(pickupOpts, messagepickup.WithStore(a.mediatorStore))
	}

	a.pickup = messagepickup.New(a.messenger, pickupOpts...)

	// the connection service discloses the families registered before it
	if err = createConnections(a); err != nil {
		return err
	}

	a.adapter = service.NewVersionAdapter(canonicalVersions(supportedSpecs(a.handlers)),
		issuecredential.AdaptationV2(), revocationnotification.Adaptation10())

	a.sweeper = registry.NewSweeper(sweeperOpts(a)...)
	a.sweeper.Add(a.sweepJobs()...)

	return nil
}

func createMediator(a *Agent) error {
	if a.mediatorStore == nil {
		return nil
	}

	_, routingKey, err := a.wallet.CreateAndStoreDID(context.Background(), a.routingSeed)
	if err != nil {
		return fmt.Errorf("create mediator routing key: %w", err)
	}

	a.routingKeys = []string{routingKey}

	opts := []mediator.Opt{
		mediator.WithMessenger(a.messenger),
		mediator.WithSigningKey(routingKey),
	}

	if a.grantPolicy != nil {
		opts = append(opts, mediator.WithGrantPolicy(a.grantPolicy))
	}

	a.mediator = mediator.New(a.mediatorStore, mediator.NewConfig(a.endpoint, a.routingKeys), opts...)
	a.handlers = append(a.handlers, a.mediator)

	return nil
}

func createCredentialServices(a *Agent) error {
	if a.anoncreds == nil {
		logger.Infof("no anoncreds capability: %s and %s are disabled", issuecredential.Name, presentproof.Name)

		return nil
	}

	credentials, err := issuecredential.New(a.anoncreds, a.read, a.write, a.storeProvider,
		issuecredential.Config{AutoIssue: a.autoIssue}, a.runnerOpts...)
	if err != nil {
		return fmt.Errorf("create %s service: %w", issuecredential.Name, err)
	}

	a.credentials = credentials
	a.proofs = presentproof.New(a.anoncreds, a.read, presentproof.Config{AutoPresent: a.autoPresent},
		a.runnerOpts...)

	a.handlers = append(a.handlers, a.credentials, a.proofs)

	return nil
}

func createConnections(a *Agent) error {
	a.handlers = append(a.handlers, a.revocations, a.mediationClient, a.pickup)

	var protocols []connection.Protocol

	for _, spec := range supportedSpecs(a.handlers) {
		protocols = append(protocols, connection.Protocol{PID: spec})
	}

	connections, err := connection.New(a.wallet, a.storeProvider, connection.Config{
		Label:     a.label,
		Endpoint:  a.endpoint,
		Protocols: protocols,
	}, a.runnerOpts...)
	if err != nil {
		return fmt.Errorf("create %s service: %w", connection.Name, err)
	}

	a.connections = connections
	a.handlers = append([]service.InboundHandler{connections}, a.handlers...)

	return nil
}

func sweeperOpts(a *Agent) []registry.SweeperOpt {
	if a.sweepInterval == 0 {
		return nil
	}

	return []registry.SweeperOpt{registry.WithSweepInterval(a.sweepInterval)}
}

func (a *Agent) sweepJobs() []registry.SweepJob {
	jobs := []registry.SweepJob{a.connections, a.revocations, a.mediationClient}

	if a.credentials != nil {
		jobs = append(jobs, a.credentials, a.proofs)
	}

	return jobs
}

// Start runs the timeout sweeper and, when configured, the pickup poller.
func (a *Agent) Start() error {
	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	if a.pickupInterval == 0 {
		return nil
	}

	a.poller = gocron.NewScheduler(time.UTC)

	if _, err := a.poller.Every(a.pickupInterval).SingletonMode().Do(a.pollMediators); err != nil {
		a.sweeper.Stop()

		return fmt.Errorf("schedule pickup: %w", err)
	}

	a.poller.StartAsync()

	return nil
}

// Close stops the background jobs and frees the resources owned by the agent.
func (a *Agent) Close() error {
	if a.poller != nil {
		a.poller.Stop()
	}

	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	if a.proofs != nil {
		a.proofs.Close()
	}

	if a.ownsStore && a.storeProvider != nil {
		if err := a.storeProvider.Close(); err != nil {
			return fmt.Errorf("failed to close the store: %w", err)
		}
	}

	return nil
}

// Wallet returns the agent wallet.
func (a *Agent) Wallet() wallet.Wallet {
	return a.wallet
}

// Messenger returns the outbound messenger.
func (a *Agent) Messenger() *messenger.Messenger {
	return a.messenger
}

// Journal returns the protocol state journal.
func (a *Agent) Journal() *protocolstate.Journal {
	return a.journal
}

// Connections returns the connection service.
func (a *Agent) Connections() *connection.Service {
	return a.connections
}

// Credentials returns the issue credential service, nil without anoncreds capability.
func (a *Agent) Credentials() *issuecredential.Service {
	return a.credentials
}

// Proofs returns the present proof service, nil without anoncreds capability.
func (a *Agent) Proofs() *presentproof.Service {
	return a.proofs
}

// Revocations returns the revocation notification service.
func (a *Agent) Revocations() *revocationnotification.Service {
	return a.revocations
}

// Mediator returns the mediator service, nil unless the agent was given mediator persistence.
func (a *Agent) Mediator() *mediator.Service {
	return a.mediator
}

// MediationClient returns the recipient side of the coordinate mediation protocol.
func (a *Agent) MediationClient() *mediator.Client {
	return a.mediationClient
}

// Pickup returns the messagepickup service.
func (a *Agent) Pickup() *messagepickup.Service {
	return a.pickup
}

// RoutingKeys returns the keys a mediator agent grants, empty for other agents.
func (a *Agent) RoutingKeys() []string {
	return a.routingKeys
}
