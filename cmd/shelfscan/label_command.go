package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/imaging"
	"shelfscan/internal/inventory"
	"shelfscan/internal/labels"
	"shelfscan/internal/qrmsg"
)

func newLabelCommand(ctx *commandContext) *cobra.Command {
	var output string
	var skipLookup bool

	cmd := &cobra.Command{
		Use:   "label <id>",
		Short: "Render the QR label for an item",
		Long: "Render the QR label for an item as a PNG sized for the label printer.\n" +
			"The label is written to the configured label directory unless --output is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !skipLookup {
				err := ctx.withStore(cmd.Context(), func(store inventory.Store) error {
					if _, err := store.FetchItem(cmd.Context(), id); err != nil {
						return itemError(id, err)
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			renderer := newLabelRenderer(cfg, ctx)
			out := cmd.OutOrStdout()
			if target := strings.TrimSpace(output); target != "" {
				label, err := renderer.Render(id)
				if err != nil {
					return err
				}
				data, err := imaging.EncodePNG(label)
				if err != nil {
					return fmt.Errorf("encode label: %w", err)
				}
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fmt.Errorf("write label: %w", err)
				}
				fmt.Fprintf(out, "Wrote label for item %d to %s\n", id, target)
				return nil
			}

			path, err := renderer.Print(cmd.Context(), id, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote label for item %d to %s\n", id, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the label PNG to this path")
	cmd.Flags().BoolVar(&skipLookup, "no-lookup", false, "Render without checking that the item exists")
	return cmd
}

func newLabelRenderer(cfg *config.Config, ctx *commandContext) *labels.Renderer {
	return &labels.Renderer{
		Codec:      qrmsg.FromConfig(cfg.QR),
		Width:      cfg.Labels.WidthPx,
		Height:     cfg.Labels.HeightPx,
		Dir:        cfg.Paths.LabelDir,
		SaveCopies: cfg.Labels.SaveCopies,
		Logger:     ctx.cliLogger(),
	}
}
