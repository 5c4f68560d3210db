package main

import (
	"errors"
	"os"
)

func main() {
	err := newRootCmd().Execute()

	if logSink != nil {
		logSink.Close()
	}

	if err != nil {
		// The summary already said which files failed.
		if errors.Is(err, errSyncFailed) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
