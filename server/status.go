/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package server

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

type Status struct {
	sync.RWMutex

	ListenAddr string     `json:"listen_addr"`
	StartedAt  *time.Time `json:"started_at"`
	Routes     int        `json:"routes"`

	SessionsTotal             uint64 `json:"sessions_total"`
	MessagesAccepted          uint64 `json:"messages_accepted"`
	MessagesRejectedPolicy    uint64 `json:"messages_rejected_policy"`
	MessagesRejectedTransient uint64 `json:"messages_rejected_transient"`
}

func (status *Status) Copy() (*Status, error) {
	status.RLock()
	defer status.RUnlock()

	s := &Status{}
	err := copier.CopyWithOption(s, status, copier.Option{
		IgnoreEmpty: true,
		DeepCopy:    true,
	})

	return s, err
}

func (server *Server) Status() (*Status, error) {
	status, err := server.status.Copy()
	if err != nil {
		return nil, err
	}

	status.Routes = server.getRouter().Len()

	return status, nil
}
