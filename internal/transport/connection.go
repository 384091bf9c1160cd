// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries text lines between matrixctl and a switcher
// over a serial port, a raw TCP socket or a WebSocket bridge.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// PasswordEnv names the environment variable checked before prompting.
const PasswordEnv = "MATRIXCTL_PASSWORD"

const (
	dialTimeout      = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Connection is a byte stream to the switcher.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// Options selects and configures the link.
type Options struct {
	Kind        string
	Port        string
	Baud        int
	Address     string
	URL         string
	Username    string
	Password    string
	NoSSLVerify bool
}

// OptionsFromConfig converts a normalized transport configuration.
func OptionsFromConfig(c config.TransportConfig, password string) Options {
	return Options{
		Kind:        c.Kind,
		Port:        c.Port,
		Baud:        c.Baud,
		Address:     c.Address,
		URL:         c.URL,
		Username:    c.Username,
		Password:    password,
		NoSSLVerify: c.NoSSLVerify,
	}
}

// Describe returns a human readable summary of the link.
func (o Options) Describe() string {
	switch o.Kind {
	case config.TransportSerial:
		return fmt.Sprintf("Serial: %s @ %d baud", o.Port, o.Baud)
	case config.TransportTCP:
		return fmt.Sprintf("TCP: %s", o.Address)
	case config.TransportWebSocket:
		return fmt.Sprintf("WebSocket: %s", o.URL)
	default:
		return "unconfigured"
	}
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection exposes a WebSocket bridge as a byte stream. Each
// message carries one or more feedback lines.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool

	writeMu sync.Mutex
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if len(data) == 0 {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port at 8N1.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenTCPConnection dials a raw TCP socket, typically a serial server.
func OpenTCPConnection(ctx context.Context, address string) (Connection, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout+handshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// Open opens the link described by opts.
func Open(ctx context.Context, opts Options) (Connection, string, error) {
	var (
		conn Connection
		err  error
	)
	switch opts.Kind {
	case config.TransportWebSocket:
		conn, err = OpenWebSocketConnection(ctx, opts.URL, opts.Username, opts.Password, opts.NoSSLVerify)
	case config.TransportTCP:
		conn, err = OpenTCPConnection(ctx, opts.Address)
	case config.TransportSerial:
		conn, err = OpenSerialConnection(opts.Port, opts.Baud)
	default:
		return nil, "", fmt.Errorf("either --port, --host or --url must be specified")
	}
	if err != nil {
		return nil, "", err
	}
	return conn, opts.Describe(), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line instead.
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
