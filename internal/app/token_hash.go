package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/sift/internal/auth"
)

func runTokenHash(args []string) int {
	fs := flag.NewFlagSet("token-hash", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	token := fs.String("token", "", "API token to hash")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "token-hash does not accept positional arguments")
		return 2
	}

	hash, err := auth.HashToken(*token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash token: %v\n", err)
		return 2
	}

	fmt.Println(hash)
	return 0
}
