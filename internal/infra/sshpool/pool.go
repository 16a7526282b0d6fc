// Package sshpool maintains one persistent SSH connection per host,
// lazily dialed and key-file authenticated, offering both one-shot
// command execution and interactive PTY sessions for the terminal
// channel (spec.md §4.3, §4.12).
package sshpool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ConnectTimeout is the dial deadline for a new connection (spec.md §5).
const ConnectTimeout = 10 * time.Second

// CommandResult is the outcome of a non-interactive command execution.
type CommandResult struct {
	Stdout string
	Stderr string
	Code   int
}

// PTYOptions configures an interactive shell.
type PTYOptions struct {
	Cols, Rows int
	Term       string
}

// PTY is a live interactive shell handle used by the terminal channel to
// pipe data bidirectionally.
type PTY struct {
	session *ssh.Session
	Stdin   chan<- []byte
	Stdout  <-chan []byte
	done    chan struct{}
}

// Resize forwards a window-change request to the remote shell.
func (p *PTY) Resize(cols, rows int) error {
	return p.session.WindowChange(rows, cols)
}

// Close ends the PTY session without disposing the pooled SSH connection.
func (p *PTY) Close() error {
	err := p.session.Close()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return err
}

// Pool owns one persistent *ssh.Client per host, replacing stale
// connections lazily on the next call that needs them.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*ssh.Client
	config  *ssh.ClientConfig
}

// New constructs a Pool authenticating with the private key at keyPath.
func New(keyPath string) (*Pool, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("sshpool: read key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("sshpool: parse key: %w", err)
	}
	return &Pool{
		clients: make(map[string]*ssh.Client),
		config: &ssh.ClientConfig{
			User:            "root",
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), // private LAN, no external CA
			Timeout:         ConnectTimeout,
		},
	}, nil
}

// client returns the pooled connection for host, dialing lazily and
// replacing a dead connection.
func (p *Pool) client(host string) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[host]; ok {
		// Probe liveness cheaply; a failed keepalive means the
		// connection is stale and must be replaced.
		if _, _, err := c.SendRequest("keepalive@jarvis", true, nil); err == nil {
			return c, nil
		}
		c.Close()
		delete(p.clients, host)
	}

	c, err := ssh.Dial("tcp", host+":22", p.config)
	if err != nil {
		return nil, fmt.Errorf("sshpool: dial %s: %w", host, err)
	}
	p.clients[host] = c
	return c, nil
}

// Exec runs cmd on host and races it against timeout, since the SSH
// protocol offers no native per-command timeout (spec.md §4.3).
func (p *Pool) Exec(ctx context.Context, host, cmd string, timeout time.Duration) (CommandResult, error) {
	client, err := p.client(host)
	if err != nil {
		return CommandResult{}, err
	}
	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("sshpool: new session on %s: %w", host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-runCtx.Done():
		session.Signal(ssh.SIGKILL)
		return CommandResult{}, fmt.Errorf("sshpool: command on %s exceeded %s", host, timeout)
	case err := <-done:
		code := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				code = exitErr.ExitStatus()
			} else {
				return CommandResult{}, err
			}
		}
		return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Code: code}, nil
	}
}

// OpenShell acquires the pooled connection for host and requests an
// interactive PTY with the given geometry, returning a handle the
// terminal channel pipes data through.
func (p *Pool) OpenShell(ctx context.Context, host string, opts PTYOptions) (*PTY, error) {
	client, err := p.client(host)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("sshpool: new session on %s: %w", host, err)
	}

	term := opts.Term
	if term == "" {
		term = "xterm-256color"
	}
	modes := ssh.TerminalModes{ssh.ECHO: 1, ssh.TTY_OP_ISPEED: 14400, ssh.TTY_OP_OSPEED: 14400}
	if err := session.RequestPty(term, opts.Rows, opts.Cols, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("sshpool: request pty on %s: %w", host, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("sshpool: start shell on %s: %w", host, err)
	}

	in := make(chan []byte)
	out := make(chan []byte)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case b, ok := <-in:
				if !ok {
					return
				}
				if _, err := stdin.Write(b); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	go func() {
		defer close(out)
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return &PTY{session: session, Stdin: in, Stdout: out, done: done}, nil
}

// CloseAll disposes every pooled connection, called on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for host, c := range p.clients {
		c.Close()
		delete(p.clients, host)
	}
}
