// Package status reads the backend's /status endpoint.
//
// The body is decoded leniently: any field that is missing or has an
// unexpected type falls back to its default instead of failing the parse.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	// Port is the well-known TCP port of the backend HTTP endpoint.
	Port = 35248
	// Path is the status endpoint path.
	Path = "/status"

	// Unknown fills missing name and version fields.
	Unknown = "Unknown"

	maxBodySize = 1 << 20
)

// ErrStatusCode is returned by Get for any non-200 response.
var ErrStatusCode = errors.New("unexpected status code")

// Peer is one entry of the backend's discovery list.
type Peer struct {
	Address string `json:"ip"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Snapshot is the parsed result of a health poll.
type Snapshot struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime"`
	Port          int    `json:"port"`
	Peers         []Peer `json:"discovery"`
}

// URL returns the status URL of a backend at host on the fixed port.
func URL(host string) string {
	return URLWithPort(host, Port)
}

// URLWithPort returns the status URL of a backend at host:port.
func URLWithPort(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + Path
}

// NewClient returns an HTTP client with separate connect and read budgets.
func NewClient(connectTimeout, readTimeout time.Duration) *http.Client {
	return NewClientWithDialer(&net.Dialer{Timeout: connectTimeout}, connectTimeout, readTimeout)
}

// NewClientWithDialer is NewClient with a caller-supplied dialer, used to pin
// requests to a specific network interface.
func NewClientWithDialer(dialer *net.Dialer, connectTimeout, readTimeout time.Duration) *http.Client {
	if dialer.Timeout == 0 {
		dialer.Timeout = connectTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: readTimeout,
			DisableKeepAlives:     true,
		},
		Timeout: connectTimeout + readTimeout,
	}
}

// Get performs one GET against url and returns the body of a 200 response.
func Get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read status body: %w", err)
	}
	return body, nil
}

// Fetch performs one GET against url and parses the result.
func Fetch(ctx context.Context, client *http.Client, url string) (Snapshot, error) {
	body, err := Get(ctx, client, url)
	if err != nil {
		return Snapshot{}, err
	}
	return Parse(body)
}

// Parse decodes a status body. Only a body that is not a JSON object fails.
func Parse(body []byte) (Snapshot, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Name:          stringField(fields, "name", Unknown),
		Version:       stringField(fields, "version", Unknown),
		UptimeSeconds: intField(fields, "uptime", 0),
		Port:          int(intField(fields, "port", 0)),
		Peers:         peersField(fields, "discovery"),
	}
	return snap, nil
}

// NameOr returns the name field of a status body, or fallback when the body
// cannot be parsed or carries no usable name.
func NameOr(body []byte, fallback string) string {
	fields, err := decodeObject(body)
	if err != nil {
		return fallback
	}
	return stringField(fields, "name", fallback)
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode status body: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("failed to decode status body: not an object")
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key, fallback string) string {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return fallback
}

func intField(fields map[string]json.RawMessage, key string, fallback int64) int64 {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return fallback
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fallback
		}
		n = json.Number(s)
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return fallback
}

func peersField(fields map[string]json.RawMessage, key string) []Peer {
	peers := []Peer{}
	raw, ok := fields[key]
	if !ok {
		return peers
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return peers
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		peers = append(peers, Peer{
			Address: stringField(item, "ip", ""),
			Name:    stringField(item, "name", ""),
			Version: stringField(item, "version", ""),
		})
	}
	return peers
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
