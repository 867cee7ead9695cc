package repl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"inventory-engine/internal/core"
)

func printOrders(out io.Writer, orders []core.Order) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, "  ORDERS")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	if len(orders) == 0 {
		fmt.Fprintln(out, "  No orders found.")
		fmt.Fprintln(out, strings.Repeat("=", 80))
		return
	}
	fmt.Fprintf(out, "  %-5s %-16s %-8s %-11s %-10s %12s  %s\n", "ID", "ORDER NO", "SHOP", "STATUS", "PAYMENT", "TOTAL", "CREATED")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, o := range orders {
		fmt.Fprintf(out, "  %-5d %-16s %-8s %-11s %-10s %12s  %s\n",
			o.ID, o.OrderNumber, shopLabel(o.ShopID), o.Status, o.PaymentStatus,
			o.TotalAmount.StringFixed(2), o.CreatedAt.Format("2006-01-02"))
	}
	fmt.Fprintln(out, strings.Repeat("=", 80))
}

func printOrderDetail(out io.Writer, o *core.Order) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 70))
	fmt.Fprintf(out, "  Order:     %s (ID %d)\n", o.OrderNumber, o.ID)
	fmt.Fprintf(out, "  Shop:      %s\n", shopLabel(o.ShopID))
	fmt.Fprintf(out, "  Status:    %s\n", o.Status)
	fmt.Fprintf(out, "  Payment:   %s (%s paid)\n", o.PaymentStatus, o.PaidAmount.StringFixed(2))
	if o.TrackingNumber != "" {
		fmt.Fprintf(out, "  Tracking:  %s\n", o.TrackingNumber)
	}
	fmt.Fprintln(out, strings.Repeat("-", 70))
	fmt.Fprintf(out, "  %-5s %-9s %-10s %8s %12s %12s  %s\n", "LINE", "KIND", "ITEM", "QTY", "UNIT PRICE", "TOTAL", "STRATEGY")
	fmt.Fprintln(out, strings.Repeat("-", 70))
	for _, l := range o.Items {
		fmt.Fprintf(out, "  %-5d %-9s %-10s %8s %12s %12s  %s\n",
			l.LineNumber, l.Kind, itemLabel(l.ProductID, l.MaterialID),
			l.Quantity.String(), l.UnitPrice.StringFixed(2), l.LineTotal.StringFixed(2), l.Strategy)
	}
	fmt.Fprintln(out, strings.Repeat("-", 70))
	fmt.Fprintf(out, "  %-50s %12s\n", "TOTAL", o.TotalAmount.StringFixed(2))
	fmt.Fprintln(out, strings.Repeat("-", 70))
}

func printPickingList(out io.Writer, pl *core.PickingList) {
	fmt.Fprintf(out, "Order %s is PROCESSING. Pick list:\n", pl.OrderNumber)
	fmt.Fprintf(out, "  %-5s %-16s %-24s %8s  %s\n", "LINE", "SKU", "NAME", "QTY", "FROM")
	for _, l := range pl.Lines {
		from := "pool"
		if l.LocationID != nil {
			from = "location:" + strconv.Itoa(*l.LocationID)
		}
		fmt.Fprintf(out, "  %-5d %-16s %-24s %8s  %s\n", l.LineNumber, l.SKU, l.Name, l.Quantity.String(), from)
	}
}

func printReservations(out io.Writer, rs []core.Reservation) {
	if len(rs) == 0 {
		fmt.Fprintln(out, "No reservations.")
		return
	}
	fmt.Fprintf(out, "  %-6s %-8s %6s %-10s %s\n", "ID", "PRODUCT", "QTY", "STATUS", "EXPIRES")
	for _, r := range rs {
		fmt.Fprintf(out, "  %-6d %-8d %6d %-10s %s\n",
			r.ID, r.ProductID, r.Quantity, r.Status, r.ExpiryDate.Format("2006-01-02 15:04"))
	}
}

func shopLabel(shopID *int) string {
	if shopID == nil {
		return "global"
	}
	return strconv.Itoa(*shopID)
}

func itemLabel(productID, materialID *int) string {
	switch {
	case productID != nil:
		return "p:" + strconv.Itoa(*productID)
	case materialID != nil:
		return "m:" + strconv.Itoa(*materialID)
	}
	return "-"
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "STOCK ENGINE COMMANDS")
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ORDERS")
	fmt.Fprintln(out, "  /orders [status]                 List recent orders")
	fmt.Fprintln(out, "  /order <ref>                     Show one order")
	fmt.Fprintln(out, "  /new-order [shop|global] [pay]   Create order (interactive)")
	fmt.Fprintln(out, "  /confirm <ref>                   pending -> confirmed")
	fmt.Fprintln(out, "  /process <ref>                   confirmed -> processing, print pick list")
	fmt.Fprintln(out, "  /fulfill <ref> [tracking]        processing -> fulfilled, consume reservations")
	fmt.Fprintln(out, "  /complete <ref>                  fulfilled -> completed")
	fmt.Fprintln(out, "  /cancel <ref>                    Cancel and release reservations")
	fmt.Fprintln(out, "  /restock <ref>                   Return eager stock of a cancelled order")
	fmt.Fprintln(out, "  /reservations <ref>              List reservations of an order")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  STOCK")
	fmt.Fprintln(out, "  /summary <product>               Pool, reserved and per-location stock")
	fmt.Fprintln(out, "  /movements <product> [limit]     Movement history")
	fmt.Fprintln(out, "  /verify <product>                Check the movement chain")
	fmt.Fprintln(out, "  /conservation <product>          Check unit conservation")
	fmt.Fprintln(out, "  /low                             Allocations below minimum")
	fmt.Fprintln(out, "  /assign <loc> <product> <qty>    Pool -> location")
	fmt.Fprintln(out, "  /reassign <loc> <product> <qty>  Set a location to an absolute quantity")
	fmt.Fprintln(out, "  /unassign <loc> <product>        Return a whole allocation to the pool")
	fmt.Fprintln(out, "  /sweep                           Expire overdue reservations now")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  SESSION")
	fmt.Fprintln(out, "  /help                            Show this help")
	fmt.Fprintln(out, "  /exit                            Exit")
	fmt.Fprintln(out, strings.Repeat("=", 62))
}
