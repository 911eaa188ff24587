package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shelfscan/internal/detect"
	"shelfscan/internal/imaging"
	"shelfscan/internal/qrmsg"
	"shelfscan/internal/scan"
)

func newQRCommand(ctx *commandContext) *cobra.Command {
	qrCmd := &cobra.Command{
		Use:   "qr",
		Short: "Encode, decode and scan label messages",
	}
	qrCmd.AddCommand(newQREncodeCommand(ctx))
	qrCmd.AddCommand(newQRDecodeCommand(ctx))
	qrCmd.AddCommand(newQRScanCommand(ctx))
	return qrCmd
}

func newQREncodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <id>",
		Short: "Print the label message for an item id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			codec := qrmsg.FromConfig(ctx.configValue().QR)
			fmt.Fprintln(cmd.OutOrStdout(), codec.Encode(id))
			return nil
		},
	}
}

func newQRDecodeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <message>",
		Short: "Check a label message and print its item id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := qrmsg.FromConfig(ctx.configValue().QR)
			valid, id := codec.Decode(args[0])
			if !valid {
				return fmt.Errorf("%q is not a shelfscan label message", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %d\n", id)
			return nil
		},
	}
}

type scanReport struct {
	Outcome  string   `json:"outcome"`
	ItemID   *int64   `json:"item_id,omitempty"`
	Markers  int      `json:"markers"`
	Payloads []string `json:"payloads,omitempty"`
}

func newQRScanCommand(ctx *commandContext) *cobra.Command {
	var annotatedPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Detect labels in an image file the way the camera loop does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			img, err := imaging.Decode(data)
			if err != nil {
				return fmt.Errorf("decode image %s: %w", args[0], err)
			}

			logger := ctx.cliLogger()
			result := detect.New(detect.WithAnnotateText(cfg.QR.AnnotateText), detect.WithLogger(logger)).Detect(img)
			outcome := scan.NewResolver(qrmsg.FromConfig(cfg.QR), logger).Resolve(result.Count, result.Payloads, time.Now())

			if path := strings.TrimSpace(annotatedPath); path != "" {
				encoded, err := imaging.EncodePNG(result.Annotated)
				if err != nil {
					return fmt.Errorf("encode annotated image: %w", err)
				}
				if err := os.WriteFile(path, encoded, 0o644); err != nil {
					return fmt.Errorf("write annotated image: %w", err)
				}
			}

			report := scanReport{Outcome: outcome.Kind.String(), Markers: result.Count, Payloads: result.Payloads}
			if outcome.Kind == scan.EventKind {
				id := outcome.Event.ItemID
				report.ItemID = &id
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			switch outcome.Kind {
			case scan.EventKind:
				fmt.Fprintf(out, "item %d\n", outcome.Event.ItemID)
			case scan.Invalid:
				fmt.Fprintf(out, "not a shelfscan label: %q\n", outcome.Payload)
			case scan.Ambiguous:
				fmt.Fprintf(out, "%d labels in view; hold up a single label\n", result.Count)
			default:
				fmt.Fprintln(out, "no label found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&annotatedPath, "annotated", "", "Write the annotated image (PNG) to this path")
	addJSONFlag(cmd, &asJSON)
	return cmd
}
