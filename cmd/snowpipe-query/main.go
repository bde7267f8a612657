// Command snowpipe-query is a smoke-test CLI for the snowpipe client: it
// reads connection configuration from the environment, runs one
// statement, and prints the row count and first few decoded rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/snowpipe-go"
)

var (
	warehouse = flag.String("warehouse", "", "Warehouse to run the statement on (defaults to SNOWFLAKE_DEFAULT_WAREHOUSE)")
	streaming = flag.Bool("streaming", false, "Fetch result partitions lazily instead of materializing the whole result")
	logLevel  = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	timeout   = flag.Duration("timeout", 2*time.Minute, "Overall query timeout")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: snowpipe-query [flags] '<sql>'")
		os.Exit(2)
	}
	sql := args[0]

	client, err := snowpipe.Connect()
	if err != nil {
		log.Error().Err(err).Msg("failed to build client from environment")
		os.Exit(1)
	}

	// Applied after Connect, which sets the global level from the client
	// config and would otherwise override the flag.
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client, sql); err != nil {
		log.Error().Err(err).Msg("query failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, client *snowpipe.Client, sql string) error {
	result, err := client.Query(ctx, sql, *warehouse, *streaming)
	if err != nil {
		return err
	}

	if result.IsStreaming() {
		fmt.Println("columns:", result.ColumnNames())
		n := 0
		err := result.Iterate(ctx, func(row snowpipe.Row) error {
			n++
			if n <= 10 {
				m, err := row.ToMap()
				if err != nil {
					return err
				}
				fmt.Printf("row %d: %v\n", n, m)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Println("rows:", n)
		return nil
	}

	fmt.Println("columns:", result.ColumnNames())
	fmt.Println("rows:", result.RowCount())
	for i := 0; i < result.RowCount() && i < 10; i++ {
		row, err := result.Row(i)
		if err != nil {
			return err
		}
		m, err := row.ToMap()
		if err != nil {
			return err
		}
		fmt.Printf("row %d: %v\n", i, m)
	}
	return nil
}
