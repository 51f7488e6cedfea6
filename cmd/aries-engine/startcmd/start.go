/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyperledger/aries-protocol-engine/pkg/common/logging"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport"
	arieshttp "github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-protocol-engine/pkg/didcomm/transport/ws"
	"github.com/hyperledger/aries-protocol-engine/pkg/framework/agent"
	mediatorstore "github.com/hyperledger/aries-protocol-engine/pkg/store/mediator"
	"github.com/hyperledger/aries-protocol-engine/pkg/store/mediator/postgres"
)

const (
	envPrefix = "ARIES_ENGINE"

	configFlagName  = "config"
	configFlagUsage = "Configuration file (yaml, json or toml)." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_CONFIG"

	hostFlagName      = "host"
	hostFlagShorthand = "a"
	hostFlagUsage     = "Host Name:Port serving the inbound transports and the admin routes." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_HOST"

	endpointFlagName      = "endpoint"
	endpointFlagShorthand = "e"
	endpointFlagUsage     = "Service endpoint announced in invitations and DID documents." +
		" Defaults to http://<host>." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_ENDPOINT"

	labelFlagName      = "label"
	labelFlagShorthand = "l"
	labelFlagUsage     = "Label announced in invitations and requests." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_LABEL"

	logLevelFlagName  = "log-level"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_LOG_LEVEL"

	logFormatFlagName  = "log-format"
	logFormatFlagUsage = "Structured log output. Possible values [json] [console]." +
		" Defaults to the plain aries logger if not set." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_LOG_FORMAT"

	storageTypeFlagName      = "storage-type"
	storageTypeFlagShorthand = "q"
	storageTypeFlagUsage     = "The type of storage for wallet, ledger, connections and protocol state." +
		" Supported options: mem, leveldb. Defaults to mem." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_STORAGE_TYPE"

	storagePathFlagName  = "storage-path"
	storagePathFlagUsage = "Directory of the leveldb storage." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_STORAGE_PATH"

	persistenceFlagName  = "mediator-persistence"
	persistenceFlagUsage = "Makes the agent a mediator keeping accounts and messages in the given persistence." +
		" Supported options: none, storage, postgres. Defaults to none." +
		" Alternatively, this can be set with the following environment variable: " +
		envPrefix + "_MEDIATOR_PERSISTENCE"

	postgresDSNFlagName  = "postgres-dsn"
	postgresDSNFlagUsage = "PostgreSQL connection string of the postgres mediator persistence." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_POSTGRES_DSN"

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutFlagUsage = "Total time to wait until the database is available before giving up." +
		" Alternatively, this can be set with the following environment variable: " +
		envPrefix + "_DATABASE_TIMEOUT"

	grantPolicyFlagName  = "grant-policy"
	grantPolicyFlagUsage = "Expression deciding mediation requests, for instance 'account_count < 100'." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_GRANT_POLICY"

	routingSeedFlagName  = "routing-key-seed"
	routingSeedFlagUsage = "32 byte seed of the mediator routing key." +
		" Alternatively, this can be set with the following environment variable: " +
		envPrefix + "_ROUTING_KEY_SEED"

	outboundTransportFlagName      = "outbound-transport"
	outboundTransportFlagShorthand = "o"
	outboundTransportFlagUsage     = "Outbound transport type." +
		" This flag can be repeated, allowing for multiple transports." +
		" Possible values [http] [ws]. Defaults to http if not set." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " +
		envPrefix + "_OUTBOUND_TRANSPORT"

	returnRouteFlagName  = "transport-return-route"
	returnRouteFlagUsage = "Transport Return Route option. Possible values [none] [all] [thread]." +
		" Alternatively, this can be set with the following environment variable: " +
		envPrefix + "_TRANSPORT_RETURN_ROUTE"

	protocolTimeoutFlagName  = "protocol-timeout"
	protocolTimeoutFlagUsage = "How long a protocol machine waits for its counterparty." +
		" Alternatively, this can be set with the following environment variable: " +
		envPrefix + "_PROTOCOL_TIMEOUT"

	sweepIntervalFlagName  = "sweep-interval"
	sweepIntervalFlagUsage = "How often expired protocol machines are timed out." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_SWEEP_INTERVAL"

	pickupIntervalFlagName  = "pickup-interval"
	pickupIntervalFlagUsage = "How often granted mediators are polled for waiting messages. 0 disables polling." +
		" Alternatively, this can be set with the following environment variable: " +
		envPrefix + "_PICKUP_INTERVAL"

	corsOriginFlagName  = "cors-origin"
	corsOriginFlagUsage = "Allowed CORS origin. This flag can be repeated. Defaults to all origins." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " +
		envPrefix + "_CORS_ORIGIN"

	tlsCertFileFlagName      = "tls-cert-file"
	tlsCertFileFlagShorthand = "c"
	tlsCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_TLS_CERT_FILE"

	tlsKeyFileFlagName      = "tls-key-file"
	tlsKeyFileFlagShorthand = "k"
	tlsKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + envPrefix + "_TLS_KEY_FILE"

	httpProtocol      = "http"
	websocketProtocol = "ws"

	storageTypeMemOption     = "mem"
	storageTypeLevelDBOption = "leveldb"

	persistenceNoneOption     = "none"
	persistenceStorageOption  = "storage"
	persistencePostgresOption = "postgres"

	defaultStoragePath     = "./data"
	defaultDatabaseTimeout = 30 * time.Second
	defaultProtocolTimeout = 10 * time.Minute
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("aries-framework/aries-engine")
)

// Config holds the start parameters, read from flags, environment and the configuration file.
type Config struct {
	Host               string        `mapstructure:"host"`
	Endpoint           string        `mapstructure:"endpoint"`
	Label              string        `mapstructure:"label"`
	LogLevel           string        `mapstructure:"log-level"`
	LogFormat          string        `mapstructure:"log-format"`
	StorageType        string        `mapstructure:"storage-type"`
	StoragePath        string        `mapstructure:"storage-path"`
	Persistence        string        `mapstructure:"mediator-persistence"`
	PostgresDSN        string        `mapstructure:"postgres-dsn"`
	DatabaseTimeout    time.Duration `mapstructure:"database-timeout"`
	GrantPolicy        string        `mapstructure:"grant-policy"`
	RoutingKeySeed     string        `mapstructure:"routing-key-seed"`
	OutboundTransports []string      `mapstructure:"outbound-transport"`
	ReturnRoute        string        `mapstructure:"transport-return-route"`
	ProtocolTimeout    time.Duration `mapstructure:"protocol-timeout"`
	SweepInterval      time.Duration `mapstructure:"sweep-interval"`
	PickupInterval     time.Duration `mapstructure:"pickup-interval"`
	CORSOrigins        []string      `mapstructure:"cors-origin"`
	TLSCertFile        string        `mapstructure:"tls-cert-file"`
	TLSKeyFile         string        `mapstructure:"tls-key-file"`
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	srv := &http.Server{Addr: host, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	if certFile != "" && keyFile != "" {
		return srv.ListenAndServeTLS(certFile, keyFile)
	}

	return srv.ListenAndServe()
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start an agent",
		Long:  `Start an Aries protocol engine agent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return startAgent(cfg, server)
		},
	}
}

func createFlags(startCmd *cobra.Command) {
	flags := startCmd.Flags()

	flags.String(configFlagName, "", configFlagUsage)
	flags.StringP(hostFlagName, hostFlagShorthand, "", hostFlagUsage)
	flags.StringP(endpointFlagName, endpointFlagShorthand, "", endpointFlagUsage)
	flags.StringP(labelFlagName, labelFlagShorthand, "", labelFlagUsage)
	flags.String(logLevelFlagName, "", logLevelFlagUsage)
	flags.String(logFormatFlagName, "", logFormatFlagUsage)
	flags.StringP(storageTypeFlagName, storageTypeFlagShorthand, storageTypeMemOption, storageTypeFlagUsage)
	flags.String(storagePathFlagName, defaultStoragePath, storagePathFlagUsage)
	flags.String(persistenceFlagName, persistenceNoneOption, persistenceFlagUsage)
	flags.String(postgresDSNFlagName, "", postgresDSNFlagUsage)
	flags.Duration(databaseTimeoutFlagName, defaultDatabaseTimeout, databaseTimeoutFlagUsage)
	flags.String(grantPolicyFlagName, "", grantPolicyFlagUsage)
	flags.String(routingSeedFlagName, "", routingSeedFlagUsage)
	flags.StringSliceP(outboundTransportFlagName, outboundTransportFlagShorthand, []string{},
		outboundTransportFlagUsage)
	flags.String(returnRouteFlagName, "", returnRouteFlagUsage)
	flags.Duration(protocolTimeoutFlagName, defaultProtocolTimeout, protocolTimeoutFlagUsage)
	flags.Duration(sweepIntervalFlagName, 0, sweepIntervalFlagUsage)
	flags.Duration(pickupIntervalFlagName, 0, pickupIntervalFlagUsage)
	flags.StringSlice(corsOriginFlagName, []string{}, corsOriginFlagUsage)
	flags.StringP(tlsCertFileFlagName, tlsCertFileFlagShorthand, "", tlsCertFileFlagUsage)
	flags.StringP(tlsKeyFileFlagName, tlsKeyFileFlagShorthand, "", tlsKeyFileFlagUsage)
}

// loadConfig merges, by precedence, the flags set on cmd, the ARIES_ENGINE_* environment, the configuration
// file and the flag defaults.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if file := v.GetString(configFlagName); file != "" {
		v.SetConfigFile(file)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}

		logger.Infof("using config file %s", v.ConfigFileUsed())
	}

	cfg := &Config{}

	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Host == "" {
		return errMissingHost
	}

	if c.Endpoint == "" {
		c.Endpoint = httpProtocol + "://" + c.Host
	}

	if _, ok := supportedStorageProviders[c.StorageType]; !ok {
		return fmt.Errorf("storage type %q not supported, run start --help to see the available options",
			c.StorageType)
	}

	switch c.Persistence {
	case "", persistenceNoneOption, persistenceStorageOption:
	case persistencePostgresOption:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s persistence requires --%s", persistencePostgresOption, postgresDSNFlagName)
		}
	default:
		return fmt.Errorf("mediator persistence %q not supported, run start --help to see the available options",
			c.Persistence)
	}

	switch logging.Format(c.LogFormat) {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("log format %q not supported", c.LogFormat)
	}

	if c.RoutingKeySeed != "" && len(c.RoutingKeySeed) != 32 { // nolint: gomnd
		return fmt.Errorf("routing key seed must be 32 bytes, got %d", len(c.RoutingKeySeed))
	}

	return nil
}

// nolint:gochecknoglobals
var supportedStorageProviders = map[string]func(path string) (storage.Provider, error){
	storageTypeMemOption: func(_ string) (storage.Provider, error) { // nolint:unparam
		return mem.NewProvider(), nil
	},
	storageTypeLevelDBOption: func(path string) (storage.Provider, error) { // nolint:unparam
		return leveldb.NewProvider(path), nil
	},
}

func setLogging(cfg *Config) error {
	if cfg.LogFormat != "" {
		log.Initialize(logging.NewProvider(os.Stdout, logging.Format(cfg.LogFormat)))
	}

	if cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", cfg.LogLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", cfg.LogLevel)
	}

	return nil
}

func startAgent(cfg *Config, server server) error {
	if err := setLogging(cfg); err != nil {
		return err
	}

	a, cleanup, err := createAgent(cfg)
	if err != nil {
		return fmt.Errorf("failed to start aries engine on host [%s] : %w", cfg.Host, err)
	}

	defer cleanup()

	if err = a.Start(); err != nil {
		return fmt.Errorf("failed to start aries engine on host [%s] : %w", cfg.Host, err)
	}

	handler, err := newRouter(a, cfg.CORSOrigins)
	if err != nil {
		return fmt.Errorf("failed to start aries engine on host [%s] : %w", cfg.Host, err)
	}

	logger.Infof("Starting aries engine on host [%s], endpoint [%s]", cfg.Host, cfg.Endpoint)

	err = server.ListenAndServe(cfg.Host, handler, cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start aries engine on host [%s], cause:  %w", cfg.Host, err)
	}

	return nil
}

// createAgent builds the agent of cfg. The returned cleanup releases the agent and its storage.
func createAgent(cfg *Config) (*agent.Agent, func(), error) {
	var closers []func()

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := createStoreProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	closers = append(closers, func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warnf("close storage: %s", closeErr)
		}
	})

	opts := []agent.Option{
		agent.WithStoreProvider(store),
		agent.WithEndpoint(cfg.Endpoint),
		agent.WithTransportReturnRoute(cfg.ReturnRoute),
		agent.WithSweepInterval(cfg.SweepInterval),
		agent.WithPickupInterval(cfg.PickupInterval, 0),
	}

	if cfg.Label != "" {
		opts = append(opts, agent.WithLabel(cfg.Label))
	}

	if cfg.ProtocolTimeout > 0 {
		opts = append(opts, agent.WithProtocolTimeout(cfg.ProtocolTimeout))
	}

	outbounds, err := getOutboundTransports(cfg.OutboundTransports)
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	opts = append(opts, agent.WithOutboundTransports(outbounds...))

	mediatorOpts, closePersistence, err := getMediatorOpts(cfg, store)
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	if closePersistence != nil {
		closers = append(closers, closePersistence)
	}

	opts = append(opts, mediatorOpts...)

	a, err := agent.New(opts...)
	if err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("failed to initialize agent : %w", err)
	}

	closers = append(closers, func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warnf("close agent: %s", closeErr)
		}
	})

	return a, cleanup, nil
}

func createStoreProvider(cfg *Config) (storage.Provider, error) {
	provider := supportedStorageProviders[cfg.StorageType]

	var store storage.Provider

	err := waitForDatabase(cfg.DatabaseTimeout, "storage", func() error {
		var openErr error
		store, openErr = provider(cfg.StoragePath)

		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage : %w", cfg.StorageType, err)
	}

	return store, nil
}

func getMediatorOpts(cfg *Config, store storage.Provider) ([]agent.Option, func(), error) {
	var (
		persistence mediatorstore.Persistence
		closeFn     func()
	)

	switch cfg.Persistence {
	case "", persistenceNoneOption:
		return nil, nil, nil
	case persistenceStorageOption:
		s, err := mediatorstore.NewStore(store)
		if err != nil {
			return nil, nil, fmt.Errorf("create mediator store : %w", err)
		}

		persistence = s
	case persistencePostgresOption:
		p, err := openPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}

		persistence, closeFn = p, p.Close
	}

	opts := []agent.Option{agent.WithMediatorPersistence(persistence)}

	if cfg.GrantPolicy != "" {
		policy, err := mediator.NewGrantPolicy(cfg.GrantPolicy)
		if err != nil {
			if closeFn != nil {
				closeFn()
			}

			return nil, nil, err
		}

		opts = append(opts, agent.WithGrantPolicy(policy))
	}

	if cfg.RoutingKeySeed != "" {
		opts = append(opts, agent.WithRoutingKeySeed([]byte(cfg.RoutingKeySeed)))
	}

	return opts, closeFn, nil
}

func openPostgres(cfg *Config) (*postgres.Persistence, error) {
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres : %w", err)
	}

	p := postgres.New(pool)

	err = waitForDatabase(cfg.DatabaseTimeout, "postgres", func() error {
		return p.Ping(ctx)
	})
	if err != nil {
		p.Close()

		return nil, fmt.Errorf("failed to connect to postgres : %w", err)
	}

	if err = p.Migrate(ctx); err != nil {
		p.Close()

		return nil, fmt.Errorf("failed to migrate postgres : %w", err)
	}

	return p, nil
}

func waitForDatabase(timeout time.Duration, name string, open func() error) error {
	retries := uint64(timeout / time.Second)

	return backoff.RetryNotify(open,
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), retries),
		func(retryErr error, t time.Duration) {
			logger.Warnf("failed to connect to %s, will sleep for %s before trying again : %s", name, t, retryErr)
		},
	)
}

func getOutboundTransports(outboundTransports []string) ([]transport.Outbound, error) {
	if len(outboundTransports) == 0 {
		outboundTransports = []string{httpProtocol}
	}

	var outbounds []transport.Outbound

	for _, outboundTransport := range outboundTransports {
		switch outboundTransport {
		case httpProtocol:
			outbound, err := arieshttp.NewOutbound(arieshttp.WithOutboundHTTPClient(&http.Client{}))
			if err != nil {
				return nil, fmt.Errorf("http outbound transport initialization failed : %w", err)
			}

			outbounds = append(outbounds, outbound)
		case websocketProtocol:
			outbounds = append(outbounds, ws.NewOutbound())
		default:
			return nil, fmt.Errorf("outbound transport [%s] not supported", outboundTransport)
		}
	}

	return outbounds, nil
}
