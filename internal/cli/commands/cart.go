package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/orders"
)

// NewCartCmd creates the cart command group
func NewCartCmd(opts ...Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the shopping cart",
	}

	cmd.AddCommand(newCartAddCmd(opts))
	cmd.AddCommand(newCartRemoveCmd(opts))
	cmd.AddCommand(newCartListCmd(opts))
	cmd.AddCommand(newCartShipCmd(opts))

	return cmd
}

func newCartAddCmd(opts []Option) *cobra.Command {
	var item cart.Item

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart, replacing any existing line for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			item.ProductID = args[0]
			if item.Qty < 1 {
				return fmt.Errorf("quantity must be at least 1")
			}
			if item.Price == "" {
				return fmt.Errorf("price is required (use --price)")
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			if item.Name == "" {
				item.Name = item.ProductID
			}
			a.Carts.AddItem(item)
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %d x %s\n", item.Qty, item.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&item.Name, "name", "", "Product name")
	cmd.Flags().StringVar(&item.Price, "price", "", "Unit price, e.g. 19.99")
	cmd.Flags().IntVar(&item.Qty, "qty", 1, "Quantity")
	cmd.Flags().StringVar(&item.Image, "image", "", "Product image path")
	cmd.Flags().IntVar(&item.CountInStock, "stock", 0, "Units in stock")

	return cmd
}

func newCartRemoveCmd(opts []Option) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <product-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a product from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			a.Carts.RemoveItem(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", args[0])
			return nil
		},
	}
}

func newCartListCmd(opts []Option) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "Show the cart",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			out := cmd.OutOrStdout()
			state := a.Carts.State()

			if len(state.Items) == 0 {
				fmt.Fprintln(out, "Your cart is empty.")
				fmt.Fprintln(out, "\nAdd a product with: shopsync cart add <product-id> --price <price>")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tNAME\tQTY\tPRICE")
			fmt.Fprintln(w, "───────\t────\t───\t─────")
			for _, it := range state.Items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", it.ProductID, it.Name, it.Qty, it.Price)
			}
			w.Flush()

			priced, err := orders.BuildOrderRequest(state, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nItems:    %s\n", priced.ItemsPrice)
			fmt.Fprintf(out, "Shipping: %s\n", priced.ShippingPrice)
			fmt.Fprintf(out, "Tax:      %s\n", priced.TaxPrice)
			fmt.Fprintf(out, "Total:    %s\n", priced.TotalPrice)

			if !state.ShippingAddress.IsZero() {
				addr := state.ShippingAddress
				fmt.Fprintf(out, "\nShip to:  %s, %s %s, %s\n", addr.Address, addr.City, addr.PostalCode, addr.Country)
			}
			return nil
		},
	}
}

func newCartShipCmd(opts []Option) *cobra.Command {
	var addr cart.ShippingAddress

	cmd := &cobra.Command{
		Use:   "ship",
		Short: "Set the shipping address",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if addr.IsZero() {
				return fmt.Errorf("at least one of --address, --city, --postal-code, --country is required")
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			a.Carts.SaveShippingAddress(addr)
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Shipping address saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr.Address, "address", "", "Street address")
	cmd.Flags().StringVar(&addr.City, "city", "", "City")
	cmd.Flags().StringVar(&addr.PostalCode, "postal-code", "", "Postal code")
	cmd.Flags().StringVar(&addr.Country, "country", "", "Country")

	return cmd
}
