package main

import (
	"os"
	_ "time/tzdata"

	appLog "calgrid/internal/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		appLog.Error("calgrid failed", err)
		os.Exit(1)
	}
}
