// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package objectstore is the minimal PUT abstraction the metrics CSV flush
// dispatches through. None of the retrieved example repos pull in a cloud
// SDK, so this is a plain net/http PUT against a configurable base URL
// (e.g. a pre-signed S3 URL or an internal gateway) rather than an AWS/GCS
// client library.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// Store uploads named blobs under a configurable base URL.
type Store struct {
	baseURL string
	client  *http.Client
}

// New builds a Store that PUTs to baseURL + "/" + key.
func New(baseURL string, client *http.Client) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{baseURL: baseURL, client: client}
}

// Put uploads body under key (e.g. "{subgraphId}/{blockNumber}/gas.csv").
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	url := fmt.Sprintf("%s/%s", s.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("objectstore: put %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}
