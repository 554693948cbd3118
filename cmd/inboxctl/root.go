package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbaliyan/inbox"
	"github.com/rbaliyan/inbox/api"
	"github.com/rbaliyan/inbox/internal/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "inboxctl",
		Short: "Terminal client for the inbox message service",
		Long: `inboxctl signs in to the message service, lists and sends messages,
marks them read and follows the unread counters.

The session is kept in the configured session store between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(cfgFile)
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/inbox/config.yaml)")
	root.PersistentFlags().Bool("json", false, "print results as JSON")
	root.PersistentFlags().String("api-url", "", "message service URL (overrides api.base_url)")
	_ = viper.BindPFlag("output.json", root.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("api.base_url", root.PersistentFlags().Lookup("api-url"))

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newListCmd(),
		newSendCmd(),
		newReadCmd(),
		newUnreadCmd(),
		newWatchCmd(),
		newConfigCmd(),
	)
	return root
}

// app is one connected inbox client built from the configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	api     *api.Client
	client  *inbox.Client
	closers []func(context.Context) error
	redis   map[string]goredis.UniversalClient
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.Logger()

	apiClient, err := api.New(cfg.API.BaseURL,
		api.WithBasePath(cfg.API.BasePath),
		api.WithTimeout(cfg.API.Timeout),
		api.WithOTel(cfg.API.OTel),
		api.WithUserAgent("inboxctl"),
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, api: apiClient}

	st, err := a.openStore()
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("open session store: %w", err)
	}

	opts := []inbox.Option{
		inbox.WithLogger(logger),
		inbox.WithDefaultPageSize(cfg.Mailbox.PageSize),
		inbox.WithPollInterval(cfg.Mailbox.PollInterval),
		inbox.WithLatestIssuedLoadWins(cfg.Mailbox.LatestLoadWins),
		inbox.WithAutoStartUnreadCount(false),
		inbox.WithOTel(cfg.API.OTel),
	}
	opts = append(opts, a.eventOptions()...)

	client, err := inbox.NewClient(apiClient, apiClient, st, opts...)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	a.client = client
	return a, nil
}

// Close disconnects the client and releases every backend connection.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// run builds an app for the duration of fn.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

// requireSession fails when nobody is signed in.
func requireSession(a *app) (*inbox.User, error) {
	u := a.client.Session().User()
	if u == nil {
		return nil, fmt.Errorf("not logged in: %w", inbox.ErrNoSession)
	}
	return u, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput() bool {
	return viper.GetBool("output.json")
}
