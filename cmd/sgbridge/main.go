// Command sgbridge calls SupplyGraph agents from the command line and serves
// them to downstream agent runtimes over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// EnvConfig names the environment variable holding the default config path.
const EnvConfig = "SGBRIDGE_CONFIG"

type rootOptions struct {
	configPath string
	apiKey     string
	baseURL    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sgbridge",
		Short: "Bridge SupplyGraph agents to downstream agent runtimes",
		Long: `sgbridge talks to the SupplyGraph agent gateway. It runs tasks, polls
their status, fetches results and manifests, re-emits reasoning streams and
serves all of it over HTTP in a normalized shape.`,
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv(EnvConfig), "Config file (.yaml, .yml or .json)")
	flags.StringVar(&opts.apiKey, "api-key", "", "Gateway API key (default $SUPPLYGRAPH_API_KEY)")
	flags.StringVar(&opts.baseURL, "base-url", "", "Gateway base URL (default $SUPPLYGRAPH_BASE_URL)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(
		newManifestCmd(opts),
		newRunCmd(opts),
		newPollCmd(opts, "status", "Show the status of a task"),
		newPollCmd(opts, "results", "Fetch the final result of a task"),
		newStreamCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sgbridge:", err)
		os.Exit(1)
	}
}
