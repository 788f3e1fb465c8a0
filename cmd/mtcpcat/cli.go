// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"code.hybscloud.com/mtcp"
	"code.hybscloud.com/mtcp/tmtcp"
)

// exchanger sends one message and waits for the reply.
type exchanger interface {
	exchange(ctx context.Context, msg []byte) ([]byte, error)
	io.Closer
}

// plainExchanger speaks bare MTCP. The reply wait is bounded by a read
// deadline; a reply that misses it is skipped by the next exchange.
type plainExchanger struct {
	nc    net.Conn
	conn  *mtcp.Conn
	buf   []byte
	stale int // replies owed to exchanges that timed out
}

func newPlainExchanger(nc net.Conn, maxSize int) *plainExchanger {
	return &plainExchanger{
		nc:   nc,
		conn: mtcp.NewConn(nc, mtcp.WithTimeoutAsWouldBlock()),
		buf:  make([]byte, maxSize),
	}
}

func (e *plainExchanger) exchange(ctx context.Context, msg []byte) ([]byte, error) {
	if _, err := e.conn.SendMessage(msg); err != nil {
		return nil, err
	}
	dl, _ := ctx.Deadline()
	if err := e.nc.SetReadDeadline(dl); err != nil {
		return nil, err
	}
	for {
		n, err := e.conn.ReceiveMessage(e.buf)
		if err == mtcp.ErrWouldBlock {
			// The partial reply stays in the receive State.
			e.stale++
			return nil, context.DeadlineExceeded
		}
		if err != nil {
			return nil, err
		}
		if e.stale > 0 {
			e.stale--
			continue
		}
		return e.buf[:n], nil
	}
}

func (e *plainExchanger) Close() error { return e.conn.Close() }

// txnExchanger speaks TMTCP, one transaction for the whole session.
type txnExchanger struct {
	conn  *tmtcp.Conn
	txn   *tmtcp.Txn
	done  chan error
	stale int // replies owed to exchanges that timed out
}

func newTxnExchanger(conn *tmtcp.Conn) (*txnExchanger, error) {
	t, err := conn.Open()
	if err != nil {
		return nil, err
	}
	e := &txnExchanger{conn: conn, txn: t, done: make(chan error, 1)}
	go func() { e.done <- conn.Serve(context.Background()) }()
	return e, nil
}

// exchange relies on the peer replying in order within the transaction,
// so the first stale replies received belong to earlier exchanges.
func (e *txnExchanger) exchange(ctx context.Context, msg []byte) ([]byte, error) {
	if _, err := e.txn.Send(msg); err != nil {
		return nil, err
	}
	for {
		p, err := e.txn.Recv(ctx)
		if err == context.DeadlineExceeded {
			e.stale++
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		if e.stale > 0 {
			e.stale--
			continue
		}
		return p, nil
	}
}

func (e *txnExchanger) Close() error {
	err := e.conn.Close()
	<-e.done
	return err
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

type cli struct {
	addr    string
	ex      exchanger
	timeout time.Duration
	output  io.Writer
}

func (c *cli) print(msg string) {
	io.WriteString(c.output, msg)
}

func (c *cli) start() error {
	var historyFile string
	if home := os.Getenv("HOME"); home != "" {
		historyFile = path.Join(home, ".mtcpcat_history")
	}
	l, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("[%s] » ", c.addr),
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer l.Close()
	c.output = l.Stderr()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		}

		switch strings.TrimSpace(line) {
		case "quit":
			return nil
		case "help":
			c.print("every other line is sent as one message; the reply is printed.\n")
			c.print(completer.Tree("    "))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		reply, err := c.ex.exchange(ctx, []byte(line))
		cancel()
		if err != nil {
			c.print(fmt.Sprintf("[ERROR] %v (%s)\n", err, mtcp.Classify(err)))
			if mtcp.Classify(err) != mtcp.OutcomeRetry && err != context.DeadlineExceeded {
				return err
			}
			continue
		}
		c.print(fmt.Sprintf("%q\n", reply))
	}
}
