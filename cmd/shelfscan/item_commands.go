package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shelfscan/internal/imaging"
	"shelfscan/internal/inventory"
	"shelfscan/internal/ipc"
	"shelfscan/internal/session"
)

func newItemCommand(ctx *commandContext) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item",
		Short: "Manage inventory items",
	}
	itemCmd.AddCommand(newItemAddCommand(ctx))
	itemCmd.AddCommand(newItemListCommand(ctx))
	itemCmd.AddCommand(newItemShowCommand(ctx))
	itemCmd.AddCommand(newItemCheckoutCommand(ctx))
	itemCmd.AddCommand(newItemCheckinCommand(ctx))
	itemCmd.AddCommand(newItemSnapCommand(ctx))
	return itemCmd
}

func newItemAddCommand(ctx *commandContext) *cobra.Command {
	var input inventory.NewItem
	var tags string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item to the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tags != "" {
				input.Tags = strings.Split(tags, ",")
			}
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				item, err := store.CreateItem(cmd.Context(), input)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %d (%s)\n", item.ID, item.Name)
				fmt.Fprintf(cmd.OutOrStdout(), "Print its label with `shelfscan label %d`\n", item.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "Item name (required)")
	cmd.Flags().StringVar(&input.Description, "description", "", "Item description")
	cmd.Flags().StringVar(&input.Manufacturer, "manufacturer", "", "Manufacturer")
	cmd.Flags().StringVar(&input.ManufacturerContact, "contact", "", "Manufacturer contact")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newItemListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inventory items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				items, err := store.ListItems(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Inventory is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					state := "available"
					if item.IsCheckedOut {
						state = "checked_out"
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Name,
						stateLabel(state),
						item.CheckOutPOC,
						formatTimestamp(item.CheckOutDate),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable("", []string{"ID", "Name", "State", "Contact", "Since"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				item, err := store.FetchItem(cmd.Context(), id)
				if err != nil {
					return itemError(id, err)
				}
				if asJSON {
					return writeJSON(cmd, item)
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderKeyValues(item.Name, itemDetailPairs(*item)))
				fmt.Fprintln(out, session.SummaryOf(*item))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newItemCheckoutCommand(ctx *commandContext) *cobra.Command {
	var poc string
	cmd := &cobra.Command{
		Use:   "checkout <id>",
		Short: "Check an item out to a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				s := session.New(store, ctx.cliLogger())
				if _, err := s.Load(cmd.Context(), id); err != nil {
					return itemError(id, err)
				}
				ok, err := s.Checkout(cmd.Context(), poc)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("--poc is required: name the person taking the item")
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.Summary())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&poc, "poc", "", "Person taking the item")
	return cmd
}

func newItemCheckinCommand(ctx *commandContext) *cobra.Command {
	var poc string
	cmd := &cobra.Command{
		Use:   "checkin <id>",
		Short: "Return a checked-out item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				s := session.New(store, ctx.cliLogger())
				if _, err := s.Load(cmd.Context(), id); err != nil {
					return itemError(id, err)
				}
				if err := s.Checkin(cmd.Context(), poc); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.Summary())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&poc, "poc", "", "Person returning the item")
	return cmd
}

func newItemSnapCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snap <id>",
		Short: "Store the current camera frame as the item's picture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store inventory.Store) error {
				if _, err := store.FetchItem(cmd.Context(), id); err != nil {
					return itemError(id, err)
				}
				return ctx.withClient(func(client *ipc.Client) error {
					snapper := &imaging.Snapshotter{
						Source:   client,
						Store:    store,
						MediaDir: cfg.Paths.MediaDir,
						Logger:   ctx.cliLogger(),
					}
					path, err := snapper.Capture(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Saved picture of item %d to %s\n", id, path)
					return nil
				})
			})
		},
	}
	return cmd
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func itemError(id int64, err error) error {
	if errors.Is(err, inventory.ErrNotFound) {
		return fmt.Errorf("item %d not found", id)
	}
	return fmt.Errorf("load item %d: %w", id, err)
}
