/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events and crash reports.
// Events carry counts and durations only; page paths never leave the machine.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "scanstrip/internal/log"
	"scanstrip/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
// All telemetry is strictly opt-in and disabled by default.
//
// Environment variables (read by FromEnv):
//   - SCS_TELEMETRY_OPT_IN: "1", "true", "yes" to enable events
//   - SCS_TELEMETRY_URL: URL events are POSTed to as JSON
//   - SCS_CRASH_UPLOAD_URL: URL crash reports are POSTed to
//   - SCS_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - SCS_TELEMETRY_DEBUG: if set, logs send attempts
//
// Without URLs everything is dropped, even with opt-in.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("SCS_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("SCS_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("SCS_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("SCS_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("SCS_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Event is one anonymous usage record as sent on the wire.
type Event struct {
	Name    string         `json:"name"`
	Session string         `json:"session"`
	TS      string         `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Stats counts what happened to queued events.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

// Client is an async sender with a bounded queue. It never blocks callers
// and drops events when the queue is full or a send fails.
type Client struct {
	cfg     Config
	session string
	log     *slog.Logger
	cli     *http.Client
	q       chan Event
	once    sync.Once
	closed  chan struct{}

	sent, failed, dropped atomic.Int64
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// InitDefault installs a default client from the environment unless one exists.
func InitDefault() {
	defaultOnce.Do(func() {
		defaultClient = New(FromEnv())
	})
}

// NewDefault creates and installs the default client with cfg. Later calls to
// InitDefault keep it.
func NewDefault(cfg Config) {
	defaultOnce.Do(func() {})
	defaultClient = New(cfg)
}

// New constructs a client and starts its sender.
func New(cfg Config) *Client {
	c := &Client{
		cfg:     cfg,
		session: uuid.NewString(),
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		q:       make(chan Event, 64),
		closed:  make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are sent at all.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool {
	InitDefault()
	return defaultClient.Enabled()
}

// Session is the random id shared by all events of this client.
func (c *Client) Session() string { return c.session }

// Stats returns the delivery counters.
func (c *Client) Stats() Stats {
	return Stats{Sent: c.sent.Load(), Failed: c.failed.Load(), Dropped: c.dropped.Load()}
}

// Event queues an event if enabled. Props must not contain personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	ev := Event{
		Name:    name,
		Session: c.session,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
	if len(props) > 0 {
		ev.Props = make(map[string]any, len(props))
		for k, v := range props {
			ev.Props[k] = v
		}
	}
	select {
	case c.q <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Track queues an event on the default client.
func Track(name string, props map[string]any) { InitDefault(); defaultClient.Event(name, props) }

// Command records one command with the number of pages in the strip it ran on.
func (c *Client) Command(cmd string, pages int, took time.Duration) {
	c.Event("command", map[string]any{"cmd": cmd, "pages": pages, "ms": took.Milliseconds()})
}

// Command records a command on the default client.
func Command(cmd string, pages int, took time.Duration) {
	InitDefault()
	defaultClient.Command(cmd, pages, took)
}

// Flush waits up to half a second for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for len(c.q) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Flush drains the default client.
func Flush(ctx context.Context) { InitDefault(); defaultClient.Flush(ctx) }

// Close stops the sender. Queued events are discarded.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case ev := <-c.q:
			body, err := json.Marshal(ev)
			if err != nil {
				c.failed.Add(1)
				continue
			}
			c.post(c.cfg.EventsURL, "application/json", body, "event")
		}
	}
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.failed.Add(1)
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Scanstrip-Session", c.session)
	resp, err := c.cli.Do(req)
	if err != nil {
		c.failed.Add(1)
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("what", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.failed.Add(1)
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry rejected", slog.String("what", what), slog.Int("status", resp.StatusCode))
		}
		return
	}
	c.sent.Add(1)
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("what", what))
	}
}

// UploadCrash posts a crash report to the crash URL if opted in. It does not
// wait for the upload.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", append([]byte(nil), report...), "crash")
}

// UploadCrash uploads through the default client.
func UploadCrash(report []byte) { InitDefault(); defaultClient.UploadCrash(report) }
