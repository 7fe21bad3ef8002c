/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Include pprof for debugging, its only enabled when --with-pprof is given.
	"os"
	"path/filepath"
	"runtime"
	"sync"

	systemDaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spamwall/spamwall/cmd/spamwalld/common"
	"github.com/spamwall/spamwall/internal/config"
	"github.com/spamwall/spamwall/internal/ipc"
	"github.com/spamwall/spamwall/server"
)

// Default param values used by this command.
var (
	DefaultLogTimestamp    = true
	DefaultLogLevel        = "info"
	DefaultSystemdNotify   = false
	DefaultListenAddr      = "127.0.0.1:10025"
	DefaultRoutesConfig    = "/etc/spamwall/spamwalld.toml"
	DefaultStatePath       = os.Getenv("SPAMWALLD_DEFAULT_STATE_PATH")
	DefaultWithPprof       = false
	DefaultPprofListenAddr = "127.0.0.1:6060"
)

func init() {
	envDefaultListenAddr := os.Getenv("SPAMWALLD_DEFAULT_LISTEN")
	if envDefaultListenAddr != "" {
		DefaultListenAddr = envDefaultListenAddr
	}

	envDefaultRoutesConfig := os.Getenv("SPAMWALLD_DEFAULT_ROUTES_CONFIG")
	if envDefaultRoutesConfig != "" {
		DefaultRoutesConfig = envDefaultRoutesConfig
	}

	if DefaultStatePath == "" {
		DefaultStatePath, _ = os.Getwd()
	}
}

func CommandServe() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve [...args]",
		Short: "Start service",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serve(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				var exitCodeErr *ErrorWithExitCode
				if errors.As(err, &exitCodeErr) {
					os.Exit(exitCodeErr.Code)
				} else {
					os.Exit(1)
				}
			}
		},
	}

	serveCmd.Flags().BoolVar(&DefaultLogTimestamp, "log-timestamp", DefaultLogTimestamp, "Prefix each log line with timestamp")
	serveCmd.Flags().StringVar(&DefaultLogLevel, "log-level", DefaultLogLevel, "Log level (one of panic, fatal, error, warn, info or debug)")
	serveCmd.Flags().BoolVar(&DefaultSystemdNotify, "systemd-notify", DefaultSystemdNotify, "Enable systemd sd_notify callback")
	serveCmd.Flags().StringVar(&DefaultListenAddr, "listen", DefaultListenAddr, "TCP listen address for the SMTP gateway")
	serveCmd.Flags().StringVar(&DefaultRoutesConfig, "routes-config", DefaultRoutesConfig, "Full path to the routes configuration file")
	serveCmd.Flags().StringVar(&DefaultStatePath, "state-path", DefaultStatePath, "Full path to writable state directory")
	serveCmd.Flags().BoolVar(&DefaultWithPprof, "with-pprof", DefaultWithPprof, "With pprof enabled")
	serveCmd.Flags().StringVar(&DefaultPprofListenAddr, "pprof-listen", DefaultPprofListenAddr, "TCP listen address for pprof")

	return serveCmd
}

func serve(cmd *cobra.Command, args []string) error {
	bs := &bootstrap{}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		bs.Wait()
	}()

	err := bs.configure(ctx, cmd, args)
	if err != nil {
		return StartupError(err)
	}

	return bs.srv.Serve(ctx)
}

type bootstrap struct {
	sync.WaitGroup

	logger logrus.FieldLogger

	srv *server.Server
}

func (bs *bootstrap) configure(ctx context.Context, cmd *cobra.Command, args []string) error {
	if err := common.ApplyFlagsFromEnvFile(cmd, nil); err != nil {
		return err
	}

	logger, err := newLogger(!DefaultLogTimestamp, DefaultLogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	bs.logger = logger

	logger.Debugln("serve start")

	if DefaultStatePath == "" {
		return fmt.Errorf("state-path must not be empty")
	}
	if info, statErr := os.Stat(DefaultStatePath); statErr != nil || !info.IsDir() {
		return fmt.Errorf("state-path error or not a directory: %w", statErr)
	}

	routesConfigPath, err := filepath.Abs(DefaultRoutesConfig)
	if err != nil {
		return fmt.Errorf("routes-config invalid: %w", err)
	}

	fileConfig, err := config.ReadConfig(routesConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load routes configuration: %w", err)
	}

	var withStatus bool

	cfg := &server.Config{
		Logger: logger,

		OnReady: func(srv *server.Server) {
			if DefaultSystemdNotify {
				ok, notifyErr := systemDaemon.SdNotify(false, systemDaemon.SdNotifyReady)
				logger.WithField("ok", ok).Debugln("called systemd sd_notify ready")
				if notifyErr != nil {
					logger.WithError(notifyErr).Errorln("failed to trigger systemd sd_notify")
				}
			}
		},
		OnStatus: func(srv *server.Server) {
			if !withStatus {
				withStatus = true
				bs.Add(1)
				go func() {
					defer bs.Done()
					<-ctx.Done()
					statusErr := clearStatus()
					if statusErr != nil {
						logger.WithError(statusErr).Errorln("failed to clear status")
					}
				}()
			}

			onStatus(srv)
		},

		ConfigPath: routesConfigPath,

		FileConfig: fileConfig,
	}

	// The listen address from the configuration file wins unless the flag
	// was given explicitly.
	if cmd.Flags().Changed("listen") || fileConfig.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	statePath, err := filepath.Abs(DefaultStatePath)
	if err != nil {
		return fmt.Errorf("state-path invalid: %w", err)
	}

	ipc.MustInitializeStatusSHM(statePath, "")

	bs.srv, err = server.NewServer(cfg)
	if err != nil {
		return err
	}

	// Profiling support.
	if DefaultWithPprof && DefaultPprofListenAddr != "" {
		runtime.SetMutexProfileFraction(5)
		go func() {
			pprofListen := DefaultPprofListenAddr
			logger.WithField("listenAddr", pprofListen).Infoln("pprof enabled, starting listener")
			if listenErr := http.ListenAndServe(pprofListen, nil); listenErr != nil {
				logger.WithError(listenErr).Errorln("unable to start pprof listener")
			}
		}()
	}

	return nil
}
