/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package push delivers locally produced payloads to the nodes of their recipients. Every recipient receives a
// stripped copy holding only its own combined key, in the binary format.
package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-payload/pkg/doc/payload"
)

const (
	// Path is the path under a peer URL accepting pushed payloads.
	Path = "/push"

	defaultMaxRetries    = 3
	defaultRetryInterval = 500 * time.Millisecond
	defaultTimeout       = 10 * time.Second
)

var logger = log.New("aries-payload/push")

// Directory maps recipient keys to the URL of the node serving them.
type Directory map[payload.RecipientKey]string

// ParseDirectory parses peer entries of the form <base64url recipient key>@<url>.
func ParseDirectory(entries []string) (Directory, error) {
	dir := make(Directory, len(entries))

	for _, e := range entries {
		parts := strings.SplitN(e, "@", 2) //nolint:gomnd
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("invalid peer %q: expected <key>@<url>", e)
		}

		key, err := payload.ParseRecipientKey(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid peer %q: %w", e, err)
		}

		dir[key] = strings.TrimSuffix(parts[1], "/")
	}

	return dir, nil
}

// Pusher posts payloads to peers.
type Pusher struct {
	dir           Directory
	client        *http.Client
	maxRetries    uint64
	retryInterval time.Duration
}

// Opt configures a Pusher.
type Opt func(p *Pusher)

// WithHTTPClient sets the client used to reach peers.
func WithHTTPClient(client *http.Client) Opt {
	return func(p *Pusher) {
		p.client = client
	}
}

// WithMaxRetries sets how many times a failed delivery is retried.
func WithMaxRetries(n uint64) Opt {
	return func(p *Pusher) {
		p.maxRetries = n
	}
}

// WithRetryInterval sets the initial interval between delivery attempts.
func WithRetryInterval(d time.Duration) Opt {
	return func(p *Pusher) {
		p.retryInterval = d
	}
}

// New returns a Pusher delivering to the peers of dir.
func New(dir Directory, opts ...Opt) *Pusher {
	p := &Pusher{
		dir:           dir,
		client:        &http.Client{Timeout: defaultTimeout},
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Push delivers p to every indexed recipient with a known peer. Recipients without a peer are skipped.
// The returned error joins the failures of all peers.
func (p *Pusher) Push(ctx context.Context, ep *payload.EncryptedPayload) error {
	index, ok := ep.RecipientIndex()
	if !ok {
		return errors.New("payload has no recipient index")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for recipient := range index {
		url, ok := p.dir[recipient]
		if !ok {
			logger.Debugf("no peer for recipient %s, skipping", recipient)

			continue
		}

		stripped, _ := ep.StripFor(recipient)

		data, err := payload.Encode(payload.CBOR, stripped)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", recipient, err)
		}

		wg.Add(1)

		go func(recipient payload.RecipientKey, url string) {
			defer wg.Done()

			if err := p.post(ctx, url+Path, data); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("push to %s for %s: %w", url, recipient, err))
				mu.Unlock()
			}
		}(recipient, url)
	}

	wg.Wait()

	return errors.Join(errs...)
}

func (p *Pusher) post(ctx context.Context, url string, data []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryInterval
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", payload.CBORMediaType)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}

		defer func() {
			if e := resp.Body.Close(); e != nil {
				logger.Errorf("failed to close response body: %s", e)
			}
		}()

		_, _ = io.Copy(io.Discard, resp.Body) // nolint:errcheck

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("peer responded %s", resp.Status)
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("peer rejected payload: %s", resp.Status))
		}

		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx),
		func(err error, d time.Duration) {
			logger.Warnf("push to %s failed, retrying in %s: %s", url, d, err)
		})
}
