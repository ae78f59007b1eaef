package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fzft/go-kami/deps/linenoise"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

const (
	HisFileEnv     = "KAMI_HISTFILE"
	HisFileDefault = ".kami_history"

	dialTimeout = 5 * time.Second
)

// Client is a line-oriented client for the service node: every line sent
// gets exactly one line back.
type Client struct {
	network string
	addr    string

	conn   net.Conn
	reader *bufio.Reader
	out    io.Writer
}

func NewClient(network, addr string) *Client {
	return &Client{
		network: network,
		addr:    addr,
		out:     os.Stdout,
	}
}

// Run connects and then reads commands from stdin: interactively with line
// editing when stdin is a terminal, line by line otherwise.
func (cli *Client) Run() error {
	if err := cli.connect(); err != nil {
		return err
	}
	defer cli.Close()

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return cli.repl()
	}
	return cli.pipe(os.Stdin)
}

func (cli *Client) connect() error {
	conn, err := net.DialTimeout(cli.network, cli.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", cli.addr, err)
	}
	cli.conn = conn
	cli.reader = bufio.NewReader(conn)
	return nil
}

func (cli *Client) Close() error {
	if cli.conn == nil {
		return nil
	}
	err := cli.conn.Close()
	cli.conn = nil
	return err
}

// Send writes one command line and returns the reply line.
func (cli *Client) Send(line string) (string, error) {
	if cli.conn == nil {
		return "", errors.New("not connected")
	}
	if _, err := io.WriteString(cli.conn, line+"\n"); err != nil {
		return "", err
	}
	reply, err := cli.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

func (cli *Client) pipe(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		reply, err := cli.Send(line)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, reply)
	}
	return sc.Err()
}

func (cli *Client) repl() error {
	ln := linenoise.New()
	defer ln.Close()

	historyFile := getDotfilePath(HisFileEnv, HisFileDefault)
	if historyFile != "" {
		_ = ln.HistoryLoad(historyFile)
		defer func() { _ = ln.HistorySave(historyFile) }()
	}

	prompt := cli.addr + "> "
	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if line == "quit" || line == "exit" {
			return nil
		}

		reply, err := cli.Send(line)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, reply)
	}
}

func getDotfilePath(envOverride, dotFilename string) string {
	path := os.Getenv(envOverride)
	if path != "" {
		if path == os.DevNull {
			return ""
		}
		return path
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, dotFilename)
}
