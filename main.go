package main

import "errors"

// exitPassFailed is returned when a pass finished but at least one drain failed.
const exitPassFailed = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errPassIncomplete) {
			exitOnError(err, exitPassFailed)
		}

		exitOnError(err, 1)
	}
}
