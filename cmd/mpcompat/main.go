// Command mpcompat applies multiplayer compatibility manifests to mod
// programs and inspects the result.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
