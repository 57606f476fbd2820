package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dejo1307/verusreport/internal/engine"
	"github.com/dejo1307/verusreport/internal/extractors"
	"github.com/dejo1307/verusreport/internal/facts"
	"github.com/dejo1307/verusreport/internal/server"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve the function inventory and verification reports over the Model Context
Protocol on stdin/stdout. An inventory written by an earlier run under the
output directory is loaded at startup so queries work immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(a.cfg)
			if err != nil {
				return err
			}

			// Auto-load an existing inventory if available.
			if root, err := filepath.Abs(a.cfg.Root); err == nil {
				a.preload(cmd, eng, root)
			}

			srv, err := server.New(eng, a.cfg, Version)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			if err := srv.Run(cmd.Context()); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// preload seeds the engine snapshot from <root>/<output dir>/inventory.jsonl.
// Failures only log; the server starts either way.
func (a *app) preload(cmd *cobra.Command, eng *engine.Engine, root string) {
	path := filepath.Join(root, a.cfg.Output.Dir, engine.InventoryArtifact)
	if _, err := os.Stat(path); err != nil {
		return
	}

	log.Printf("[main] loading existing inventory from %s", path)
	inv, err := facts.ReadJSONLFile(path)
	if err != nil {
		log.Printf("[main] warning: failed to load existing inventory: %v", err)
		return
	}
	snapshot, err := eng.Run(cmd.Context(), engine.Request{
		Root:      root,
		Inventory: inv,
		Options:   extractors.DefaultOptions(),
	})
	if err != nil {
		log.Printf("[main] warning: failed to load existing inventory: %v", err)
		return
	}
	log.Printf("[main] loaded %d functions from existing inventory", snapshot.Inventory.Count())
}
