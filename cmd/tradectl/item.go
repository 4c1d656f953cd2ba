package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/inventory"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func itemCmd(open opener, effects sideEffects) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage catalogue items",
	}
	cmd.AddCommand(itemAddCmd(open))
	cmd.AddCommand(itemRestockCmd(open, effects))
	return cmd
}

func itemAddCmd(open opener) *cobra.Command {
	var (
		owner string
		name  string
		price string
		stock int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item to the catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" || name == "" {
				return fmt.Errorf("--owner and --name are required")
			}
			p, err := decimal.NewFromString(price)
			if err != nil || !p.IsPositive() {
				return fmt.Errorf("invalid price %q", price)
			}
			if stock < 0 {
				return fmt.Errorf("stock cannot be negative")
			}

			ctx := cmd.Context()
			store, release, err := open(ctx)
			if err != nil {
				return err
			}
			defer release()

			it := orders.Item{
				ID:      uuid.NewString(),
				OwnerID: owner,
				Name:    name,
				Price:   p,
				Stock:   stock,
				Status:  orders.StatusForStock(orders.ItemAvailable, stock),
			}
			if err := store.Items().Insert(ctx, it); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), it.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	cmd.Flags().StringVar(&name, "name", "", "item name")
	cmd.Flags().StringVar(&price, "price", "", "unit price, e.g. 129.99")
	cmd.Flags().IntVar(&stock, "stock", 1, "units in stock")
	return cmd
}

func itemRestockCmd(open opener, effects sideEffects) *cobra.Command {
	return &cobra.Command{
		Use:   "restock [item-id] [stock]",
		Short: "Set an item's stock level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stock, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid stock %q", args[1])
			}

			ctx := cmd.Context()
			store, release, err := open(ctx)
			if err != nil {
				return err
			}
			defer release()

			var it orders.Item
			err = store.WithTx(ctx, func(tx orders.Tx) error {
				var err error
				it, err = inventory.Ledger{}.Restock(ctx, tx.Items(), args[0], stock)
				return err
			})
			if err != nil {
				return err
			}

			cache, _, done := effects(ctx)
			defer done()
			_, _ = cache.PutAvailability(ctx, inventory.AvailabilityOf(it))

			fmt.Fprintf(cmd.OutOrStdout(), "%s stock=%d status=%s\n", it.ID, it.Stock, it.Status)
			return nil
		},
	}
}

func parseDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
