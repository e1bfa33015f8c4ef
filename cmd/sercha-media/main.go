// Command sercha-media indexes and searches images, video and audio.
package main

import (
	"os"

	"github.com/custodia-labs/sercha-media/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
