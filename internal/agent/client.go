// Package agent talks to the remote Linux agent that runs allow-listed
// diagnostic commands on the user's machine.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/logging"
)

// ErrDisabled is returned by Execute while the agent is switched off.
var ErrDisabled = errors.New("agent disabled")

const (
	minOutputChars     = 10
	defaultMaxOutput   = 2500
	defaultMaxCommands = 3
	blockHeader        = "[DADOS DO SISTEMA]"
)

// Options configures a Client.
type Options struct {
	URL            string
	Enabled        bool
	Token          string
	MaxCommands    int
	MaxOutputChars int
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client executes catalogue commands through POST {url}/execute. The
// endpoint can be reconfigured at runtime.
type Client struct {
	mu      sync.RWMutex
	url     string
	enabled bool

	token       string
	maxCommands int
	maxOutput   int
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates an agent client.
func NewClient(opts Options) *Client {
	c := &Client{
		url:         strings.TrimRight(opts.URL, "/"),
		enabled:     opts.Enabled,
		token:       opts.Token,
		maxCommands: opts.MaxCommands,
		maxOutput:   opts.MaxOutputChars,
		httpClient:  opts.HTTPClient,
		logger:      logging.OrNop(opts.Logger).Named("agent"),
	}
	if c.maxCommands <= 0 {
		c.maxCommands = defaultMaxCommands
	}
	if c.maxOutput <= 0 {
		c.maxOutput = defaultMaxOutput
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// Configure points the client at a new agent endpoint.
func (c *Client) Configure(agentURL string, enabled bool) error {
	u, err := url.ParseRequestURI(agentURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid agent url %q", agentURL)
	}

	c.mu.Lock()
	c.url = strings.TrimRight(agentURL, "/")
	c.enabled = enabled
	c.mu.Unlock()

	c.logger.Info("agent reconfigured", zap.String("url", agentURL), zap.Bool("enabled", enabled))
	return nil
}

// Settings returns the current endpoint and whether it is enabled.
func (c *Client) Settings() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url, c.enabled
}

// Enabled reports whether the agent is switched on.
func (c *Client) Enabled() bool {
	_, enabled := c.Settings()
	return enabled
}

type executeRequest struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params"`
}

type executeResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

type output struct {
	command string
	text    string
}

// Execute runs up to MaxCommands catalogue commands in order and returns the
// formatted system-data block. Unknown commands, failures and outputs too
// short to be useful are skipped. An empty string means nothing was
// collected.
func (c *Client) Execute(ctx context.Context, commands []string) (string, error) {
	baseURL, enabled := c.Settings()
	if !enabled {
		return "", ErrDisabled
	}
	if len(commands) > c.maxCommands {
		commands = commands[:c.maxCommands]
	}

	var outputs []output
	var errs []error
	for _, cmd := range commands {
		if !Known(cmd) {
			c.logger.Warn("ignoring unknown command", zap.String("command", cmd))
			continue
		}
		text, err := c.run(ctx, baseURL, cmd)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("command failed", zap.String("command", cmd), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if len(text) <= minOutputChars {
			continue
		}
		outputs = append(outputs, output{command: cmd, text: truncate(text, c.maxOutput)})
		c.logger.Debug("command output", zap.String("command", cmd), zap.Int("chars", len(text)))
	}

	if len(outputs) == 0 {
		return "", errors.Join(errs...)
	}
	return formatBlock(outputs), nil
}

func (c *Client) run(ctx context.Context, baseURL, cmd string) (string, error) {
	body, err := json.Marshal(executeRequest{Command: cmd, Params: params(cmd)})
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("agent returned status %d for %s: %s", resp.StatusCode, cmd, strings.TrimSpace(string(respBody)))
	}

	var r executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	if r.Stdout != "" {
		return r.Stdout, nil
	}
	return r.Stderr, nil
}

func formatBlock(outputs []output) string {
	sep := strings.Repeat("=", 50)
	parts := []string{blockHeader, sep}
	for _, o := range outputs {
		parts = append(parts,
			fmt.Sprintf("\n>> %s: %s", strings.ToUpper(o.command), Describe(o.command)),
			strings.Repeat("-", 40),
			o.text,
		)
	}
	parts = append(parts, "\n"+sep)
	return strings.Join(parts, "\n")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
