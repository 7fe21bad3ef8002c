/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spamwall/spamwall/internal/config"
	"github.com/spamwall/spamwall/internal/deliver"
	"github.com/spamwall/spamwall/internal/dnsbl"
	"github.com/spamwall/spamwall/internal/router"
	"github.com/spamwall/spamwall/internal/scorer"
	"github.com/spamwall/spamwall/server/smtp/gateway"
	"github.com/spamwall/spamwall/utils"
)

// Server assembles the gate, scorer, router and dispatcher into the running
// relay service.
type Server struct {
	config *Config

	logger logrus.FieldLogger

	listenAddr string

	routes      *router.Router
	routesMutex sync.RWMutex

	Gateway *gateway.Gateway

	status          *Status
	statusBroadcast *utils.Broadcaster
}

// NewServer constructs a server from the provided parameters.
func NewServer(c *Config) (*Server, error) {
	fileConfig := c.FileConfig
	if fileConfig == nil {
		return nil, fmt.Errorf("no file configuration provided")
	}

	listenAddr := c.ListenAddr
	if listenAddr == "" {
		listenAddr = fileConfig.ListenAddr
	}
	if listenAddr == "" {
		return nil, fmt.Errorf("no listen address configured")
	}

	routes, err := router.New(fileConfig.Routes())
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	s := &Server{
		config: c,
		logger: c.Logger,

		listenAddr: listenAddr,

		routes: routes,

		status:          &Status{ListenAddr: listenAddr},
		statusBroadcast: utils.NewBroadcaster(),
	}

	gatewayConfig := &gateway.Config{
		Context: context.Background(),
		Logger:  s.logger,

		Gate:       dnsbl.NewChecker(fileConfig.DNSBL.Zones, s.logger),
		Scorer:     scorer.NewClient(fileConfig.Scorer.Address, fileConfig.Scorer.Timeout.Duration(), s.logger),
		Dispatcher: deliver.NewDispatcher(fileConfig.Deliver.Timeout.Duration(), s.logger),
		Routes:     s.getRouter,
		Recorder:   s,

		RejectScore: fileConfig.Scorer.RejectScore,
		FlagScore:   fileConfig.Scorer.FlagScore,

		// TODO(spamwall): Expose in configuration.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,

		MaxMessageBytes: 32 * 1024 * 1024,
		MaxRecipients:   100,
	}

	s.Gateway, err = gateway.New(gatewayConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway server: %w", err)
	}

	return s, nil
}

func (server *Server) Logger() logrus.FieldLogger {
	return server.logger
}

func (server *Server) getRouter() *router.Router {
	server.routesMutex.RLock()
	defer server.routesMutex.RUnlock()
	return server.routes
}

// Serve starts all the accociated servers resources and listeners and blocks
// forever until signals or error occurs.
func (server *Server) Serve(ctx context.Context) error {
	var err error

	errCh := make(chan error, 2)
	exitCh := make(chan struct{}, 1)
	signalCh := make(chan os.Signal, 1)
	readyCh := make(chan struct{}, 1)

	serveCtx, serveCtxCancel := context.WithCancel(ctx)
	defer serveCtxCancel()

	logger := server.logger

	go func() {
		select {
		case <-serveCtx.Done():
			return
		case <-readyCh:
		}
		startedAt := time.Now()
		server.status.Lock()
		server.status.StartedAt = &startedAt
		server.status.Unlock()
		logger.WithFields(logrus.Fields{
			"listen_addr": server.listenAddr,
		}).Infoln("ready")
		if server.config.OnReady != nil {
			server.config.OnReady(server)
		}
		server.notifyStatus()
	}()

	// Status pump, informs the registered status handler whenever session
	// accounting changed.
	go server.statusBroadcast.Start(serveCtx)
	go func() {
		statusCh := server.statusBroadcast.Subscribe()
		for range statusCh {
			if server.config.OnStatus != nil {
				server.config.OnStatus(server)
			}
		}
	}()

	var serversWg sync.WaitGroup

	// Start gateway listener.
	gatewayListener, listenErr := net.Listen("tcp", server.listenAddr)
	if listenErr != nil {
		return fmt.Errorf("failed to create gateway listener: %w", listenErr)
	}
	serversWg.Add(1)
	go func() {
		defer serversWg.Done()
		logger.WithField("listen_addr", gatewayListener.Addr()).Infoln("gateway listener started")
		serveErr := server.Gateway.Serve(gatewayListener)
		if serveErr != nil {
			errCh <- serveErr
		}
	}()

	// Wait for all services to stop before closing the exit channel.
	go func() {
		serversWg.Wait()
		logger.Infoln("clean gateway shutdown complete")
		close(exitCh)
	}()

	// Set ready.
	go func() {
		close(readyCh)
	}()

	// Wait for error or signal, with support for HUP to reload routes.
	err = func() error {
		signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for {
			select {
			case errFromChannel := <-errCh:
				return errFromChannel
			case reason := <-signalCh:
				if reason == syscall.SIGHUP {
					logger.Infoln("reload signal received, re-reading routes")
					if reloadErr := server.reloadRoutes(); reloadErr != nil {
						logger.WithError(reloadErr).Warnln("route reload failed, keeping current routes")
					}
					continue
				}
				logger.WithField("signal", reason).Warnln("received signal")
				return nil
			}
		}
	}()

	// Shutdown, server will stop to accept new connections.
	logger.Infoln("clean server shutdown start")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(ctx, 10*time.Second)
	go func() {
		if shutdownErr := server.Gateway.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WithError(shutdownErr).Warn("clean gateway shutdown failed")
		} else {
			logger.Info("clean gateway shutdown complete")
		}
	}()

	// Cancel our own context and wait for all services to shutdown.
	serveCtxCancel()
	func() {
		for {
			select {
			case <-exitCh:
				logger.Infoln("clean server shutdown complete, exiting")
				return
			default:
				// Some services still running.
				logger.Info("waiting services to exit")
			}
			select {
			case reason := <-signalCh:
				logger.WithField("signal", reason).Warn("received signal")
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()

	shutdownCtxCancel() // Prevents leak.

	return err
}

// reloadRoutes re-reads the configuration file and swaps the route table.
// Sessions in flight keep the router they started with.
func (server *Server) reloadRoutes() error {
	if server.config.ConfigPath == "" {
		return fmt.Errorf("no config path set")
	}

	fileConfig, err := config.ReadConfig(server.config.ConfigPath)
	if err != nil {
		return err
	}

	routes, err := router.New(fileConfig.Routes())
	if err != nil {
		return err
	}

	server.routesMutex.Lock()
	server.routes = routes
	server.routesMutex.Unlock()

	server.logger.WithField("routes", routes.Len()).Infoln("routes reloaded")
	server.notifyStatus()

	return nil
}

// RecordSession implements the gateway Recorder.
func (server *Server) RecordSession() {
	server.status.Lock()
	server.status.SessionsTotal++
	server.status.Unlock()
	server.notifyStatus()
}

// RecordMessage implements the gateway Recorder.
func (server *Server) RecordMessage(result gateway.MessageResult) {
	server.status.Lock()
	switch result {
	case gateway.MessageAccepted:
		server.status.MessagesAccepted++
	case gateway.MessageRejectedPolicy:
		server.status.MessagesRejectedPolicy++
	case gateway.MessageRejectedTransient:
		server.status.MessagesRejectedTransient++
	}
	server.status.Unlock()
	server.notifyStatus()
}

func (server *Server) notifyStatus() {
	// Dropped updates are fine, the next one carries the full state anyway.
	server.statusBroadcast.TryBroadcast(struct{}{})
}
