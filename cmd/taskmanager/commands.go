package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/service"
)

func newApp() (*application.App, error) {
	app := application.NewApp(env, configPath)
	if err := app.SetBizConfig(config.GetBizConfig()); err != nil {
		return nil, err
	}
	return app, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the claiming loop until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}

// oneShot boots every component with the claiming loop off, runs fn, then shuts down.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, c *core.Container) (any, error)) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	if err := app.Boot(); err != nil {
		return err
	}
	off := false
	config.GetBizConfig().Claiming.RunLoop = &off

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		app.Shutdown(context.Background())
		return err
	}
	defer app.Shutdown(context.Background())

	out, err := fn(ctx, app.Container())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Run exactly one claiming round and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, c *core.Container) (any, error) {
				engine, err := core.ResolveAs[*service.ClaimingEngine](c, consts.COMP_SVC_CLAIMING)
				if err != nil {
					return nil, err
				}
				engine.RunRound(ctx)
				return engine.LastRound(), nil
			})
		},
	}
}

func newPartitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "Print the partitions this node owns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, func(ctx context.Context, c *core.Container) (any, error) {
				p, err := core.ResolveAs[*partition.Partitioner](c, consts.COMP_SVC_PARTITIONER)
				if err != nil {
					return nil, err
				}
				parts, err := p.Partitions(ctx)
				if err != nil {
					return nil, fmt.Errorf("resolve partitions: %w", err)
				}
				return map[string]any{
					"node_id":    p.NodeID(),
					"enabled":    p.Enabled(),
					"partitions": parts,
				}, nil
			})
		},
	}
}
