package main

import (
	"errors"
	"fmt"
	"os"

	"warden/cmd/internal/app"
)

func main() {
	err := app.Run(os.Args[1:], app.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "warden:", err)
	if errors.Is(err, app.ErrUsage) {
		os.Exit(2)
	}
	os.Exit(1)
}
