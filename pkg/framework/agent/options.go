/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"errors"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-protocol-engine/pkg/anoncreds"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/runner"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
	"github.com/hyperledger/aries-protocol-engine/pkg/ledger"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/wallet"
)

// WithStoreProvider injects the storage provider of the wallet, the ledger, the connection records and the
// protocol state journal. The agent does not close an injected provider.
func WithStoreProvider(prov storage.Provider) Option {
	return func(opts *Agent) error {
		opts.storeProvider = prov
		return nil
	}
}

// WithWallet injects the wallet. Defaults to a local wallet in the store provider.
func WithWallet(w wallet.Wallet) Option {
	return func(opts *Agent) error {
		opts.wallet = w
		return nil
	}
}

// WithLedger injects the ledger. Reads are cached. Defaults to a ledger kept in the store provider.
func WithLedger(l ledger.ReadWriter) Option {
	return func(opts *Agent) error {
		if l == nil {
			return errors.New("ledger is nil")
		}

		opts.read, opts.write = l, l

		return nil
	}
}

// WithLedgerCache configures the ledger read cache.
func WithLedgerCache(cacheOpts ...ledger.CacheOpt) Option {
	return func(opts *Agent) error {
		opts.cacheOpts = append(opts.cacheOpts, cacheOpts...)
		return nil
	}
}

// WithAnonCreds injects the anoncreds capability. Without it the credential protocols are disabled.
func WithAnonCreds(ac anoncreds.AnonCreds) Option {
	return func(opts *Agent) error {
		opts.anoncreds = ac
		return nil
	}
}

// WithOutboundTransports injects outbound transports to the agent.
func WithOutboundTransports(outbounds ...transport.Outbound) Option {
	return func(opts *Agent) error {
		opts.outbounds = append(opts.outbounds, outbounds...)
		return nil
	}
}

// WithTransportReturnRoute asks counterparties to answer on the outbound connection. Acceptable values are
// "none", "all" and "thread".
func WithTransportReturnRoute(returnRoute string) Option {
	return func(opts *Agent) error {
		switch returnRoute {
		case "", "none", "all", "thread":
			opts.returnRoute = returnRoute
			return nil
		}

		return errors.New("invalid transport return route option: " + returnRoute)
	}
}

// WithMediatorPersistence makes the agent a mediator and message holder keeping accounts and messages in p.
func WithMediatorPersistence(p mediatorstore.Persistence) Option {
	return func(opts *Agent) error {
		opts.mediatorStore = p
		return nil
	}
}

// WithGrantPolicy decides the mediation requests a mediator agent receives.
func WithGrantPolicy(p *mediator.GrantPolicy) Option {
	return func(opts *Agent) error {
		opts.grantPolicy = p
		return nil
	}
}

// WithRoutingKeySeed derives the mediator routing key from seed, keeping it stable across restarts.
func WithRoutingKeySeed(seed []byte) Option {
	return func(opts *Agent) error {
		opts.routingSeed = seed
		return nil
	}
}

// WithLabel sets the label announced in invitations and requests.
func WithLabel(label string) Option {
	return func(opts *Agent) error {
		opts.label = label
		return nil
	}
}

// WithEndpoint sets the service endpoint of the agent.
func WithEndpoint(endpoint string) Option {
	return func(opts *Agent) error {
		opts.endpoint = endpoint
		return nil
	}
}

// WithProtocolTimeout bounds how long a protocol machine may wait for its counterparty.
func WithProtocolTimeout(d time.Duration) Option {
	return func(opts *Agent) error {
		if d <= 0 {
			return errors.New("protocol timeout must be positive")
		}

		opts.timeout = d

		return nil
	}
}

// WithSweepInterval sets how often expired machines are timed out.
func WithSweepInterval(d time.Duration) Option {
	return func(opts *Agent) error {
		opts.sweepInterval = d
		return nil
	}
}

// WithPickupInterval polls the granted mediators for waiting messages every d. Zero disables polling.
func WithPickupInterval(d time.Duration, limit int) Option {
	return func(opts *Agent) error {
		opts.pickupInterval = d

		if limit > 0 {
			opts.pickupLimit = limit
		}

		return nil
	}
}

// WithAutoIssue makes the issuer answer credential requests without waiting for AcceptRequest.
func WithAutoIssue() Option {
	return func(opts *Agent) error {
		opts.autoIssue = true
		return nil
	}
}

// WithAutoPresent makes the prover answer presentation requests without waiting for SendPresentation.
func WithAutoPresent() Option {
	return func(opts *Agent) error {
		opts.autoPresent = true
		return nil
	}
}

// WithRunnerOptions appends options to every protocol runner, for instance a clock.
func WithRunnerOptions(runnerOpts ...runner.Opt) Option {
	return func(opts *Agent) error {
		opts.runnerOpts = append(opts.runnerOpts, runnerOpts...)
		return nil
	}
}
