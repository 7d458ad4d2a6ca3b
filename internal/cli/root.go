// Package cli implements chatctl, the operator tool that works directly
// against the configured document store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"chatgate/internal/core/ports"
	"chatgate/internal/core/services"
	"chatgate/internal/infrastructure/repositories"
	"chatgate/pkg/config"
	"chatgate/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Backend is the store chatctl operates on. Locker may be nil.
type Backend struct {
	Store  ports.DocumentStore
	Locker ports.Locker
	Close  func() error
}

type StoreOpener func(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Backend, error)

// OpenConfiguredStore opens the backend named by storage.driver. A redis
// store also relays remote writes so `messages tail` sees other servers.
func OpenConfiguredStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Backend, error) {
	factory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return nil, err
	}
	store, start, err := factory.CreateDocumentStore()
	if err != nil {
		factory.Close()
		return nil, err
	}

	relayCtx, cancel := context.WithCancel(ctx)
	if start != nil {
		go func() {
			if err := start(relayCtx); err != nil && relayCtx.Err() == nil {
				log.Warnw("store relay stopped", "error", err)
			}
		}()
	}

	return &Backend{
		Store:  store,
		Locker: factory.CreateLocker(),
		Close: func() error {
			cancel()
			if err := store.Close(); err != nil {
				factory.Close()
				return err
			}
			return factory.Close()
		},
	}, nil
}

type app struct {
	open       StoreOpener
	configPath string
	logLevel   string
	jsonOutput bool

	cfg      *config.Config
	log      *zap.SugaredLogger
	release  func() error
	store    ports.DocumentStore
	auth     services.AuthService
	rooms    *services.RoomService
	messages *services.MessageChannel
}

// NewRootCommand builds the chatctl command tree.
func NewRootCommand(open StoreOpener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Administer chatgate rooms, users and roles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/config.yaml", "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newRoomsCommand(a),
		newRolesCommand(a),
		newUsersCommand(a),
		newMessagesCommand(a),
		newBackupCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(a.logLevel, "console").Sugar()

	backend, err := a.open(ctx, cfg, a.log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.release = backend.Close

	var opts []services.AuthOption
	if backend.Locker != nil {
		opts = append(opts, services.WithLoginLocker(backend.Locker))
	}
	store := backend.Store
	a.store = store
	a.auth = services.NewAuthService(store, a.log, cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, cfg.Auth.BcryptCost, opts...)
	a.rooms = services.NewRoomService(store, nil, a.log)
	a.messages = services.NewMessageChannel(store, nil, a.log, cfg.Chat.AppendTimeout, cfg.Chat.MaxMessageLength)
	return nil
}

func (a *app) teardown() error {
	if a.release == nil {
		return nil
	}
	release := a.release
	a.release = nil
	return release()
}

func (a *app) printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
