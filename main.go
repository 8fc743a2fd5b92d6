package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/GeekMasher/advanced-security-compliance/cmd"
)

func main() {
	if err := cmd.Execute(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
