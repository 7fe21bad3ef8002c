/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package deliver

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spamwall/spamwall/internal/router"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func TestDispatchSingleGroup(t *testing.T) {
	message := []byte("Subject: hi\r\n\r\nbody\r\n")

	var requests int32
	var gotBody []byte
	var gotType string
	var gotLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		gotBody, _ = ioutil.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(time.Second, testLogger())
	err := d.Dispatch(context.Background(), message, []Group{{
		Target:     router.Target{URL: server.URL},
		Recipients: []string{"a@example.com"},
	}})

	require.NoError(t, err)
	assert.Equal(t, int32(1), requests)
	assert.Equal(t, message, gotBody)
	assert.Equal(t, "message/rfc822", gotType)
	assert.Equal(t, int64(len(message)), gotLength)
}

func TestDispatchBasicAuth(t *testing.T) {
	var user, pass string
	var ok bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewDispatcher(time.Second, testLogger())

	err := d.Dispatch(context.Background(), []byte("m"), []Group{{
		Target:     router.Target{URL: server.URL, AuthUser: "u", AuthPass: "p"},
		Recipients: []string{"a@example.com"},
	}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	// Without a user name the fixed default literal is used.
	err = d.Dispatch(context.Background(), []byte("m"), []Group{{
		Target:     router.Target{URL: server.URL, AuthPass: "p"},
		Recipients: []string{"a@example.com"},
	}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, defaultAuthUser, user)

	// Without a password no Authorization header is sent.
	var gotAuth string
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer plain.Close()

	err = d.Dispatch(context.Background(), []byte("m"), []Group{{
		Target:     router.Target{URL: plain.URL, AuthUser: "u"},
		Recipients: []string{"a@example.com"},
	}})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDispatchAllMustSucceed(t *testing.T) {
	var okRequests int32
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&okRequests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()

	d := NewDispatcher(time.Second, testLogger())
	err := d.Dispatch(context.Background(), []byte("m"), []Group{
		{Target: router.Target{URL: okServer.URL}, Recipients: []string{"a@example.com"}},
		{Target: router.Target{URL: failServer.URL}, Recipients: []string{"b@example.com"}},
	})

	assert.Error(t, err, "one failed group fails the whole message")
	assert.Equal(t, int32(1), okRequests, "other groups may have been delivered already")
}

func TestDispatchConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	d := NewDispatcher(time.Second, testLogger())
	err := d.Dispatch(context.Background(), []byte("m"), []Group{{
		Target:     router.Target{URL: url},
		Recipients: []string{"a@example.com"},
	}})

	assert.Error(t, err)
}

func TestDispatchNoGroups(t *testing.T) {
	d := NewDispatcher(time.Second, testLogger())
	assert.Error(t, d.Dispatch(context.Background(), []byte("m"), nil))
}
