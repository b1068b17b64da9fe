// Package main is the entry point for leasekeeper.
// leasekeeper keeps each configured workload running on exactly one host by
// holding a lease for it in a shared store.
package main

import (
	"os"

	"leasekeeper/cmd/leasekeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
