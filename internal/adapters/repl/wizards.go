package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

// newOrder runs an interactive order creation session.
// Usage: /new-order [shop-id] [payment-status]
func (s *Session) newOrder(ctx context.Context, args []string) error {
	req := app.CreateOrderRequest{PaymentStatus: string(core.PaymentPending)}
	if len(args) > 0 && args[0] != "global" {
		shopID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid shop id %q", args[0])
		}
		req.ShopID = &shopID
	}
	if len(args) > 1 {
		req.PaymentStatus = args[1]
	}

	fmt.Fprintln(s.out, "Enter order lines. Type 'done' when finished, 'cancel' to abort.")
	fmt.Fprintln(s.out, "Format per line: <product-id> <quantity> <unit-price>")
	fmt.Fprintln(s.out, "  or:            m <material-id> <amount> <unit-price>")

	lineNum := 1
	for {
		fmt.Fprintf(s.out, "  Line %d: ", lineNum)
		raw, err := s.reader.ReadString('\n')
		raw = strings.TrimSpace(raw)
		if strings.EqualFold(raw, "cancel") {
			fmt.Fprintln(s.out, "Order creation cancelled.")
			return nil
		}
		if strings.EqualFold(raw, "done") || (raw == "" && err != nil) {
			break
		}
		if raw == "" {
			continue
		}

		item, perr := parseItemLine(raw)
		if perr != nil {
			fmt.Fprintf(s.out, "  %v\n", perr)
			continue
		}
		req.Items = append(req.Items, item)
		lineNum++
	}

	if len(req.Items) == 0 {
		fmt.Fprintln(s.out, "No lines entered. Order not created.")
		return nil
	}

	result, err := s.svc.CreateOrder(ctx, s.id, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "\nOrder created: %s\n", result.Order.OrderNumber)
	printOrderDetail(s.out, result.Order)
	return nil
}

func parseItemLine(raw string) (app.OrderItemRequest, error) {
	parts := strings.Fields(raw)
	item := app.OrderItemRequest{Kind: string(core.ItemRetail)}
	if strings.EqualFold(parts[0], "m") {
		item.Kind = string(core.ItemMaterial)
		parts = parts[1:]
	}
	if len(parts) != 3 {
		return item, fmt.Errorf("invalid format, use: [m] <id> <quantity> <unit-price>")
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return item, fmt.Errorf("invalid id %q", parts[0])
	}
	qty, err := decimal.NewFromString(parts[1])
	if err != nil || !qty.IsPositive() {
		return item, fmt.Errorf("invalid quantity %q", parts[1])
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil || price.IsNegative() {
		return item, fmt.Errorf("invalid price %q", parts[2])
	}
	if item.Kind == string(core.ItemMaterial) {
		item.MaterialID = id
	} else {
		item.ProductID = id
	}
	item.Quantity = qty
	item.UnitPrice = price
	return item, nil
}
