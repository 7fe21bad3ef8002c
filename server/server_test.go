/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package server

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spamwall/spamwall/internal/config"
	"github.com/spamwall/spamwall/server/smtp/gateway"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func testFileConfig() *config.Config {
	return &config.Config{
		ListenAddr: "127.0.0.1:0",
		Scorer: config.Scorer{
			Address:     "127.0.0.1:783",
			RejectScore: 10,
			FlagScore:   5,
			Timeout:     config.Duration(time.Second),
		},
		Deliver: config.Deliver{
			Timeout: config.Duration(time.Second),
		},
		Route: []config.Route{
			{Domains: []string{"example.com"}, URL: "https://hooks.example.net/mail"},
		},
	}
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(&Config{
		Logger:     testLogger(),
		FileConfig: testFileConfig(),
	})
	require.NoError(t, err)
	require.NotNil(t, srv.Gateway)

	assert.Equal(t, 1, srv.getRouter().Len())

	status, err := srv.Status()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", status.ListenAddr)
	assert.Equal(t, 1, status.Routes)
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(&Config{Logger: testLogger()})
	assert.Error(t, err, "missing file config")

	fileConfig := testFileConfig()
	fileConfig.ListenAddr = ""
	_, err = NewServer(&Config{Logger: testLogger(), FileConfig: fileConfig})
	assert.Error(t, err, "missing listen address")
}

func TestRecorderCounters(t *testing.T) {
	srv, err := NewServer(&Config{
		Logger:     testLogger(),
		FileConfig: testFileConfig(),
	})
	require.NoError(t, err)

	srv.RecordSession()
	srv.RecordSession()
	srv.RecordMessage(gateway.MessageAccepted)
	srv.RecordMessage(gateway.MessageRejectedPolicy)
	srv.RecordMessage(gateway.MessageRejectedTransient)

	status, err := srv.Status()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), status.SessionsTotal)
	assert.Equal(t, uint64(1), status.MessagesAccepted)
	assert.Equal(t, uint64(1), status.MessagesRejectedPolicy)
	assert.Equal(t, uint64(1), status.MessagesRejectedTransient)
}

func TestReloadRoutes(t *testing.T) {
	dir, err := ioutil.TempDir("", "spamwall-server-test")
	require.NoError(t, err)
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	configPath := filepath.Join(dir, "spamwall.toml")
	require.NoError(t, ioutil.WriteFile(configPath, []byte(`
[[Route]]
Domains = ["example.com"]
URL = "https://hooks.example.net/mail"

[[Route]]
Domains = ["*"]
URL = "https://fallback.example.net/mail"
`), 0600))

	srv, err := NewServer(&Config{
		Logger:     testLogger(),
		ConfigPath: configPath,
		FileConfig: testFileConfig(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, srv.getRouter().Len())

	require.NoError(t, srv.reloadRoutes())
	assert.Equal(t, 2, srv.getRouter().Len())

	// A broken file keeps the current routes.
	require.NoError(t, ioutil.WriteFile(configPath, []byte("not toml at all ["), 0600))
	assert.Error(t, srv.reloadRoutes())
	assert.Equal(t, 2, srv.getRouter().Len())
}

func TestStatusCopy(t *testing.T) {
	status := &Status{
		ListenAddr:    "127.0.0.1:10025",
		SessionsTotal: 7,
	}

	copied, err := status.Copy()
	require.NoError(t, err)
	assert.Equal(t, status.ListenAddr, copied.ListenAddr)
	assert.Equal(t, status.SessionsTotal, copied.SessionsTotal)

	copied.SessionsTotal = 99
	assert.Equal(t, uint64(7), status.SessionsTotal)
}
