// Command s3user-agg aggregates per-user records stored in an S3 bucket.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/s3-user-agg/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
