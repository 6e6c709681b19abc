package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redcapp/redcapp/internal/api"
	"github.com/redcapp/redcapp/internal/cache"
	"github.com/redcapp/redcapp/internal/cli/config"
	"github.com/redcapp/redcapp/internal/logging"
	"github.com/redcapp/redcapp/internal/metadata"
)

// stdinIsTerminal gates the token prompt; tests replace it
var stdinIsTerminal = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// askToken prompts for the API token; tests replace it
var askToken = func() (string, error) {
	var token string
	err := survey.AskOne(&survey.Password{
		Message: "REDCap API token:",
	}, &token, survey.WithValidator(survey.Required))
	return token, err
}

// commandEnv is the configuration and logger a command runs with
type commandEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

// setup loads the configuration and builds a logger writing to stderr
func (o *rootOptions) setup(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.LoggingOptions()
	logCfg.Output = cmd.ErrOrStderr()
	if o.verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	return &commandEnv{cfg: cfg, logger: logger}, nil
}

// client builds an API client, prompting for a missing token when a
// terminal is attached
func (e *commandEnv) client() (*api.Client, error) {
	if e.cfg.API.URL == "" {
		return nil, errors.New("api.url not set\n\nExample:\n  export REDCAP_API_URL=\"https://redcap.example.org/api/\"")
	}

	if e.cfg.API.Token == "" {
		if !stdinIsTerminal() {
			return nil, errors.New("api.token not set\n\nExample:\n  export REDCAP_API_TOKEN=\"<32 character token>\"")
		}
		token, err := askToken()
		if err != nil {
			return nil, fmt.Errorf("failed to read API token: %w", err)
		}
		e.cfg.API.Token = token
	}

	return api.NewClient(e.cfg.API.URL, e.cfg.API.Token,
		api.WithTimeout(e.cfg.API.Timeout),
		api.WithLogger(e.logger))
}

// source wraps client in the configured snapshot cache. The returned
// release func closes the cache backend.
func (e *commandEnv) source(ctx context.Context, client *api.Client) (*api.CachedSource, func(), error) {
	store, err := cache.New(ctx, e.cfg.CacheOptions())
	if err != nil {
		return nil, nil, err
	}

	release := func() {}
	if store != nil {
		release = func() {
			if err := store.Close(); err != nil {
				e.logger.Warn("failed to close cache", zap.Error(err))
			}
		}
	}

	key := cache.SnapshotKey(client.Endpoint(), e.cfg.API.Token)
	return api.NewCachedSource(client, store, key, e.cfg.Cache.TTL, e.logger), release, nil
}

// snapshot reads path when given, otherwise fetches through the cache
func (e *commandEnv) snapshot(ctx context.Context, path string) (*metadata.Snapshot, error) {
	if path != "" {
		return metadata.ReadSnapshotFile(path)
	}

	client, err := e.client()
	if err != nil {
		return nil, err
	}
	src, release, err := e.source(ctx, client)
	if err != nil {
		return nil, err
	}
	defer release()

	return src.Snapshot(ctx)
}

// index builds a metadata index from a snapshot file or the API
func (e *commandEnv) index(ctx context.Context, path string) (*metadata.Index, error) {
	snap, err := e.snapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	return snap.Index(metadata.WithLogger(e.logger))
}

// openOutput opens path for writing; "" and "-" select the command's stdout
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}
