// Package app wires every component together and runs the server,
// grounded on original_source/webvh-server/src/server.rs's three-thread
// model (REST, storage janitor, DIDComm messaging) reexpressed as Go
// goroutines coordinated by context cancellation and plain channels
// rather than OS threads and watch channels.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/affinidi/webvh-server/internal/config"
	"github.com/affinidi/webvh-server/internal/didcomm"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/httpserver"
	"github.com/affinidi/webvh-server/internal/passkey"
	"github.com/affinidi/webvh-server/internal/routes"
	"github.com/affinidi/webvh-server/internal/secretstore"
	"github.com/affinidi/webvh-server/internal/session"
	"github.com/affinidi/webvh-server/internal/store"
	"github.com/affinidi/webvh-server/internal/store/boltstore"
	"github.com/affinidi/webvh-server/internal/store/dynamostore"
	"github.com/affinidi/webvh-server/internal/store/pgstore"
	"github.com/affinidi/webvh-server/internal/store/redisstore"
	"github.com/affinidi/webvh-server/internal/telemetry"
)

const jwtSigningKeySecretName = "jwt-signing-key"

// Run loads infrastructure, wires the domain services onto HTTP, and
// runs the REST, janitor, and messaging workers until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting webvh-server", "listen", cfg.ListenAddr(), "store_backend", cfg.StoreBackend)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	sessionsKS, err := st.Keyspace(ctx, store.KeyspaceSessions)
	if err != nil {
		return fmt.Errorf("opening sessions keyspace: %w", err)
	}
	aclKS, err := st.Keyspace(ctx, store.KeyspaceACL)
	if err != nil {
		return fmt.Errorf("opening acl keyspace: %w", err)
	}
	didsKS, err := st.Keyspace(ctx, store.KeyspaceDIDs)
	if err != nil {
		return fmt.Errorf("opening dids keyspace: %w", err)
	}
	statsKS, err := st.Keyspace(ctx, store.KeyspaceStats)
	if err != nil {
		return fmt.Errorf("opening stats keyspace: %w", err)
	}

	secrets, err := openSecretStore(cfg)
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}

	root, err := secretstore.GetOrGenerate(ctx, secrets, "server-root-secret", 32)
	if err != nil {
		return fmt.Errorf("loading root secret: %w", err)
	}
	signingKey, err := secretstore.DeriveKey(root, jwtSigningKeySecretName, 32)
	if err != nil {
		return fmt.Errorf("deriving jwt signing key: %w", err)
	}
	tokens, err := session.NewTokenManager(signingKey)
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}
	sessions := session.NewManager(
		tokens,
		time.Duration(cfg.AccessTokenExpirySec)*time.Second,
		time.Duration(cfg.RefreshTokenExpirySec)*time.Second,
		time.Duration(cfg.ChallengeTTLSec)*time.Second,
	)

	did := &didops.Service{
		Store:  st,
		Dids:   didsKS,
		ACL:    aclKS,
		Stats:  statsKS,
		Config: cfg,
	}

	metricsReg := telemetry.NewMetricsRegistry()
	srv := httpserver.NewServer(cfg, logger, st, metricsReg)

	routes.Mount(srv.Router, &routes.Deps{
		DID:      did,
		Sessions: sessions,
		Passkeys: passkey.NewStore(aclKS),
		// Ceremony stays nil: the WebAuthn ceremony itself is out of
		// scope here, so the passkey routes report Authentication
		// until a concrete implementation is wired in. Codec uses the
		// unsigned FakeCodec since a real DIDComm signing/encryption
		// layer is equally out of scope, but the authenticate/refresh
		// routes still need something to unpack against.
		Ceremony: nil,
		Codec:    didcomm.FakeCodec{},

		SessionsKS: sessionsKS,
		ACLKS:      aclKS,
		DIDsKS:     didsKS,
		StatsKS:    statsKS,

		Config: cfg,
		Logger: logger,
	})

	restReady := make(chan struct{})
	errCh := make(chan error, 3)

	go runREST(ctx, cfg, logger, srv, restReady, errCh)
	go runJanitor(ctx, cfg, logger, st, did, sessions, sessionsKS, errCh)

	if cfg.MessagingEnabled && cfg.ServerDID != "" {
		go runMessaging(ctx, cfg, logger, restReady, did, sessions, aclKS, sessionsKS, errCh)
	} else {
		logger.Info("messaging worker disabled (messaging_enabled=false or server_did unset)")
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		return err
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendBolt:
		return boltstore.Open(cfg.DataDir)
	case config.StoreBackendPostgres:
		return pgstore.Open(ctx, cfg.DatabaseURL)
	case config.StoreBackendDynamoDB:
		return dynamostore.Open(ctx, cfg.DynamoRegion, cfg.DynamoTablePrefix)
	case config.StoreBackendRedis:
		return redisstore.Open(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func openSecretStore(cfg *config.Config) (secretstore.SecretStore, error) {
	switch cfg.SecretBackend {
	case config.SecretBackendEnv:
		return secretstore.NewEnvStore("WEBVH_"), nil
	case config.SecretBackendPlaintext:
		return secretstore.NewPlaintextStore(cfg.DataDir + "/secrets")
	default:
		return nil, fmt.Errorf("unknown secret backend: %s", cfg.SecretBackend)
	}
}

// runREST binds a listener immediately, so a port conflict fails fast
// instead of surfacing only once the janitor and messaging workers are
// already running, then closes restReady right before it starts
// serving.
func runREST(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *httpserver.Server, restReady chan<- struct{}, errCh chan<- error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		errCh <- fmt.Errorf("binding %s: %w", cfg.ListenAddr(), err)
		return
	}

	httpSrv := &http.Server{
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down rest worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("rest worker shutdown", "error", err)
		}
	}()

	close(restReady)
	logger.Info("rest worker listening", "addr", cfg.ListenAddr())
	if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("rest worker: %w", err)
	}
}

// runJanitor periodically sweeps expired sessions and empty,
// never-published DID slots. It starts independently of the REST and
// messaging workers; the first sweep runs one interval after startup,
// not immediately.
func runJanitor(ctx context.Context, cfg *config.Config, logger *slog.Logger, st store.Store, did *didops.Service, sessions *session.Manager, sessionsKS store.Keyspace, errCh chan<- error) {
	interval := time.Duration(cfg.SessionCleanupInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	didTTL := time.Duration(cfg.DIDCleanupTTLSec) * time.Second

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down janitor worker")
			if err := st.Persist(context.Background()); err != nil {
				logger.Error("persisting store on shutdown", "error", err)
			}
			return
		case <-ticker.C:
			removed, err := sessions.CleanupExpired(ctx, sessionsKS)
			if err != nil {
				logger.Error("session cleanup", "error", err)
			} else if removed > 0 {
				logger.Info("session cleanup", "removed", removed)
			}

			deleted, err := did.CleanupEmptyDIDs(ctx, didTTL)
			if err != nil {
				logger.Error("did cleanup", "error", err)
			} else if deleted > 0 {
				logger.Info("did cleanup", "deleted", deleted)
			}
		}
	}
}

// runMessaging waits for the REST worker to be ready to serve before
// connecting to the mediator, mirroring the main thread awaiting
// rest_ready_rx before spawning the DIDComm thread. Once connected it
// runs the inbound dispatch loop: every envelope the mediator delivers
// is routed by type through a didops-backed registry and any response
// envelope is sent back, mirroring messaging.rs's run_didcomm_loop +
// dispatch_message. The real mediator transport is out of scope; the
// dispatch and did/* handling it carries is not.
func runMessaging(ctx context.Context, cfg *config.Config, logger *slog.Logger, restReady <-chan struct{}, did *didops.Service, sessions *session.Manager, aclKS, sessionsKS store.Keyspace, errCh chan<- error) {
	select {
	case <-restReady:
	case <-ctx.Done():
		return
	}

	mediator := didcomm.NewFakeMediator(16)
	if err := mediator.Connect(ctx); err != nil {
		errCh <- fmt.Errorf("messaging worker: connecting to mediator: %w", err)
		return
	}
	logger.Info("messaging worker connected", "server_did", cfg.ServerDID, "mediator_endpoint", cfg.MediatorEndpoint)

	registry := didcomm.NewDIDOpsRegistry(cfg.ServerDID, did, sessions, aclKS, sessionsKS)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down messaging worker")
			if err := mediator.Close(); err != nil {
				logger.Error("closing mediator", "error", err)
			}
			return
		case env, ok := <-mediator.Recv():
			if !ok {
				logger.Info("mediator connection closed")
				return
			}
			resp, err := registry.Dispatch(ctx, &env)
			if err != nil {
				logger.Error("dispatching didcomm message", "type", env.Type, "error", err)
				continue
			}
			if resp == nil {
				continue
			}
			if err := mediator.Send(ctx, *resp); err != nil {
				logger.Error("sending didcomm response", "type", resp.Type, "error", err)
			}
		}
	}
}
