// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command mtcpcat is an interactive MTCP client: every line typed is sent
// as one message and the reply is printed.
package main

import (
	"flag"
	"net"
	"os"
	"time"

	"code.hybscloud.com/mtcp/internal/logging"
	"code.hybscloud.com/mtcp/tmtcp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7400", "server address")
	txn := flag.Bool("txn", true, "speak TMTCP in a single transaction")
	maxSize := flag.Int("max", 64*1024, "largest reply accepted")
	timeout := flag.Duration("timeout", 5*time.Second, "reply timeout")
	flag.Parse()

	log := logging.NewStderr("mtcpcat", logging.Config{})

	nc, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("dial")
	}

	var ex exchanger
	if *txn {
		ex, err = newTxnExchanger(tmtcp.NewConn(nc, tmtcp.WithMaxMessageSize(*maxSize)))
		if err != nil {
			log.Fatal().Err(err).Msg("open transaction")
		}
	} else {
		ex = newPlainExchanger(nc, *maxSize)
	}

	c := &cli{addr: *addr, ex: ex, timeout: *timeout}
	err = c.start()
	ex.Close()
	if err != nil {
		log.Error().Err(err).Msg("session ended")
		os.Exit(1)
	}
}
