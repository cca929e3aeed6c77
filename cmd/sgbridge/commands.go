package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"supplygraph-a2a/internal/api"
	"supplygraph-a2a/internal/config"
	"supplygraph-a2a/internal/observability/metrics"
	"supplygraph-a2a/internal/relay"
	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/pkg/logger"
	"supplygraph-a2a/pkg/reasoning"
	"supplygraph-a2a/sdk/go/a2a"
	"supplygraph-a2a/sdk/go/bridge"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// withRuntime builds the runtime for one command and prints agent.error
// envelopes for bridge failures before returning them.
func withRuntime(opts *rootOptions, fn func(cmd *cobra.Command, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(opts)
		if err != nil {
			return err
		}
		defer rt.Close()

		err = fn(cmd, rt, args)
		var be *bridge.Error
		if errors.As(err, &be) {
			_ = printJSON(cmd.OutOrStdout(), be.ErrorObject)
		}
		return err
	}
}

func newManifestCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "manifest <agent>",
		Short: "Show an agent manifest",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if raw {
				m, err := rt.client.Manifest(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			}
			m, err := rt.bridge.Manifest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		}),
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the gateway manifest unchanged")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		taskID string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "run <agent> <text>",
		Short: "Start a task, or continue one with --task-id",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *runtime, args []string) error {
			runOpts := a2a.RunOptions{TaskID: taskID}
			if raw {
				env, err := rt.client.Run(cmd.Context(), args[0], args[1], runOpts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), env.Raw)
			}
			run, err := rt.bridge.Run(cmd.Context(), args[0], args[1], runOpts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		}),
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Continue an existing task")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the gateway envelope unchanged")
	return cmd
}

func newPollCmd(opts *rootOptions, mode, short string) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   mode + " <agent> <task>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *runtime, args []string) error {
			ctx := cmd.Context()
			agentID, taskID := args[0], args[1]
			if raw {
				var (
					env gateway.Envelope
					err error
				)
				if mode == string(gateway.ModeStatus) {
					env, err = rt.client.Status(ctx, agentID, taskID, nil)
				} else {
					env, err = rt.client.Results(ctx, agentID, taskID, nil)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), env.Raw)
			}
			if mode == string(gateway.ModeStatus) {
				obj, err := rt.bridge.Status(ctx, agentID, taskID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), obj)
			}
			obj, err := rt.bridge.Result(ctx, agentID, taskID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), obj)
		}),
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the gateway envelope unchanged")
	return cmd
}

func newStreamCmd(opts *rootOptions) *cobra.Command {
	var (
		taskID  string
		publish string
	)
	cmd := &cobra.Command{
		Use:   "stream <agent> <text>",
		Short: "Run a task in streaming mode and print reasoning frames",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *runtime, args []string) error {
			pipeline := relay.Pipeline{
				Sinks:   []relay.Sink{relay.NewWriterSink(cmd.OutOrStdout())},
				OnFrame: func(f reasoning.Frame) { rt.metrics.ObserveFrame(f.Event) },
			}
			if publish != "" {
				sink, err := openPublisher(rt.cfg.Relay, publish)
				if err != nil {
					return err
				}
				defer sink.Close()
				pipeline.Mirrors = append(pipeline.Mirrors, sink)
				pipeline.OnSend = func(name string, err error) {
					if name != sink.Name() {
						return
					}
					rt.metrics.ObserveRelay(name, err)
					if err != nil {
						logger.Named("relay").Warn("publish frame failed", "sink", name, "error", err)
					}
				}
			}

			stream, err := rt.bridge.Stream(cmd.Context(), args[0], args[1], a2a.RunOptions{TaskID: taskID})
			if err != nil {
				return err
			}
			defer stream.Close()
			_, err = pipeline.Run(cmd.Context(), stream)
			return err
		}),
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Continue an existing task")
	cmd.Flags().StringVar(&publish, "publish", "", "Also publish frames to the configured broker: amqp or redis")
	return cmd
}

func openPublisher(cfg config.RelayConfig, publish string) (relay.Sink, error) {
	switch publish {
	case "amqp", "rabbitmq":
		cfg.Driver = "rabbitmq"
	case "redis":
		cfg.Driver = "redis"
	default:
		return nil, fmt.Errorf("unknown --publish target %q, want amqp or redis", publish)
	}
	return openRelay(cfg)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve normalized agents over HTTP",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *runtime, _ []string) error {
			if addr == "" {
				addr = rt.cfg.Server.Address
			}
			serverOpts := []api.Option{
				api.WithShutdownTimeout(rt.cfg.Server.ShutdownTimeout()),
				api.WithMetrics(rt.metrics, metrics.Handler()),
				api.WithLogger(logger.Named("api")),
			}
			sink, err := openRelay(rt.cfg.Relay)
			if err != nil {
				return err
			}
			if sink != nil {
				defer sink.Close()
				serverOpts = append(serverOpts, api.WithRelay(sink))
			}

			err = api.NewServer(addr, rt.bridge, serverOpts...).Start(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, $SGBRIDGE_ADDR or :8080)")
	return cmd
}
