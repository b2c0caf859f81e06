package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shopsync-dev/shopsync/internal/cli/client"
	"github.com/shopsync-dev/shopsync/internal/orders"
)

// NewOrderCmd creates the order command group
func NewOrderCmd(opts ...Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place and inspect orders",
	}

	cmd.AddCommand(newOrderPlaceCmd(opts))
	cmd.AddCommand(newOrderShowCmd(opts))

	return cmd
}

func newOrderPlaceCmd(opts []Option) *cobra.Command {
	var paymentMethod string

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place an order for everything in the cart",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			if _, ok := a.Sessions.Get(); !ok {
				return errNotLoggedIn
			}

			req, err := orders.BuildOrderRequest(a.Carts.State(), paymentMethod)
			if err != nil {
				if errors.Is(err, orders.ErrEmptyCart) {
					return fmt.Errorf("your cart is empty. Add a product with 'shopsync cart add'")
				}
				return err
			}

			order, err := a.Orders.PlaceOrder(cmd.Context(), req)
			if err != nil {
				if errors.Is(err, client.ErrNotAuthenticated) {
					return errNotLoggedIn
				}
				return ErrReported
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  Order: %s\n", order.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "  Total: %s\n", order.TotalPrice)
			return nil
		},
	}

	cmd.Flags().StringVar(&paymentMethod, "payment", "PayPal", "Payment method")

	return cmd
}

func newOrderShowCmd(opts []Option) *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			if _, ok := a.Sessions.Get(); !ok {
				return errNotLoggedIn
			}

			order, err := a.Orders.OrderDetails(cmd.Context(), args[0])
			if err != nil {
				return errors.New(client.Message(err))
			}

			printOrder(cmd.OutOrStdout(), order)
			return nil
		},
	}
}

func printOrder(out io.Writer, order *client.Order) {
	fmt.Fprintf(out, "Order %s\n\n", order.ID)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tNAME\tQTY\tPRICE")
	fmt.Fprintln(w, "───────\t────\t───\t─────")
	for _, it := range order.OrderItems {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", it.Product, it.DisplayName(), it.Qty, it.Price)
	}
	w.Flush()

	fmt.Fprintf(out, "\nItems:    %s\n", order.ItemsPrice)
	fmt.Fprintf(out, "Shipping: %s\n", order.ShippingPrice)
	fmt.Fprintf(out, "Tax:      %s\n", order.TaxPrice)
	fmt.Fprintf(out, "Total:    %s\n", order.TotalPrice)
	fmt.Fprintf(out, "Payment:  %s\n", order.PaymentMethod)

	paid := "no"
	if order.IsPaid && order.PaidAt != nil {
		paid = order.PaidAt.Local().Format("2006-01-02 15:04")
	}
	delivered := "no"
	if order.IsDelivered && order.DeliveredAt != nil {
		delivered = order.DeliveredAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(out, "Paid:     %s\n", paid)
	fmt.Fprintf(out, "Delivered: %s\n", delivered)

	if addr := order.ShippingAddress; addr != nil && !addr.IsZero() {
		fmt.Fprintf(out, "Ship to:  %s, %s %s, %s\n", addr.Address, addr.City, addr.PostalCode, addr.Country)
	}
}
