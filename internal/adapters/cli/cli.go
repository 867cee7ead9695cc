package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"inventory-engine/internal/app"
	"inventory-engine/internal/core"
)

const usage = `Available: sweep, summary <product>, verify <product>, conservation <product>,
  movements <product> [limit], low, assign <location> <product> <qty>,
  reassign <location> <product> <qty>, unassign <location> <product>`

// Run executes a one-shot operator command as id and writes the result to out.
// args is the subcommand followed by its arguments.
func Run(ctx context.Context, svc app.ApplicationService, id app.Identity, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given\n%s", usage)
	}

	switch args[0] {
	case "sweep":
		res, err := svc.RunSweep(ctx, id)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		if !res.Ran {
			fmt.Fprintln(out, "Sweep skipped: another instance holds the lock.")
			return nil
		}
		fmt.Fprintf(out, "Sweep done: scanned %d, expired %d, skipped %d, failed %d in %s\n",
			res.Result.Scanned, res.Result.Expired, res.Result.Skipped, res.Result.Failed, res.Result.Elapsed)

	case "summary", "sum", "s":
		productID, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		s, err := svc.StockSummary(ctx, id, productID[0])
		if err != nil {
			return fmt.Errorf("failed to get summary: %w", err)
		}
		printSummary(out, s)

	case "verify":
		productID, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		report, err := svc.VerifyChain(ctx, id, productID[0])
		if err != nil {
			return fmt.Errorf("failed to verify chain: %w", err)
		}
		printChain(out, report)
		if !report.Consistent {
			return fmt.Errorf("movement chain of product %d is inconsistent", report.ProductID)
		}

	case "conservation", "cons":
		productID, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		report, err := svc.Conservation(ctx, id, productID[0])
		if err != nil {
			return fmt.Errorf("failed to check conservation: %w", err)
		}
		return printJSON(out, report)

	case "movements", "mv":
		if len(args) < 2 {
			return fmt.Errorf("usage: movements <product> [limit]")
		}
		productID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[1])
		}
		limit := 20
		if len(args) > 2 {
			if limit, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("invalid limit %q", args[2])
			}
		}
		movements, err := svc.ListMovements(ctx, id, productID, limit)
		if err != nil {
			return fmt.Errorf("failed to list movements: %w", err)
		}
		printMovements(out, movements)

	case "low":
		rows, err := svc.LowStock(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list low stock: %w", err)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No allocations below their minimum level.")
			return nil
		}
		for _, r := range rows {
			fmt.Fprintf(out, "  %-12s %-16s %6d / min %d\n", r.LocationCode, r.SKU, r.Quantity, r.MinStockLevel)
		}

	case "assign":
		n, err := intArgs(args, 3)
		if err != nil {
			return err
		}
		res, err := svc.Assign(ctx, id, app.AssignRequest{LocationID: n[0], ProductID: n[1], Quantity: n[2]})
		if err != nil {
			return fmt.Errorf("assign failed: %w", err)
		}
		printTransfer(out, res)

	case "reassign":
		n, err := intArgs(args, 3)
		if err != nil {
			return err
		}
		res, err := svc.Reassign(ctx, id, app.ReassignRequest{LocationID: n[0], ProductID: n[1], Quantity: n[2]})
		if err != nil {
			return fmt.Errorf("reassign failed: %w", err)
		}
		printTransfer(out, res)

	case "unassign":
		n, err := intArgs(args, 2)
		if err != nil {
			return err
		}
		res, err := svc.Unassign(ctx, id, n[0], n[1])
		if err != nil {
			return fmt.Errorf("unassign failed: %w", err)
		}
		printTransfer(out, res)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
	return nil
}

// intArgs parses exactly n integer arguments after the command name.
func intArgs(args []string, n int) ([]int, error) {
	if len(args) != n+1 {
		return nil, fmt.Errorf("%s expects %d argument(s)\n%s", args[0], n, usage)
	}
	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(args[i+1])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s is not a number: %q", i+1, args[0], args[i+1])
		}
		out[i] = v
	}
	return out, nil
}

func printSummary(out io.Writer, s *core.StockSummary) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %s  %s (%s)\n", s.SKU, s.Name, s.Kind)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  Pool            : %d\n", s.PoolQuantity)
	fmt.Fprintf(out, "  Reserved        : %d\n", s.ReservedQuantity)
	fmt.Fprintf(out, "  Available       : %d\n", s.Available)
	fmt.Fprintf(out, "  Assigned        : %d\n", s.TotalAssigned)
	fmt.Fprintf(out, "  On hand         : %d\n", s.TotalOnHand)
	fmt.Fprintf(out, "  Units sold      : %d\n", s.UnitsSold)
	if len(s.Locations) == 0 {
		return
	}
	fmt.Fprintln(out, strings.Repeat("-", 62))
	fmt.Fprintf(out, "  %-12s %-10s %8s %8s %10s\n", "LOCATION", "KIND", "QTY", "SOLD", "REMAINING")
	for _, l := range s.Locations {
		flag := ""
		if l.LowStock {
			flag = " LOW"
		}
		fmt.Fprintf(out, "  %-12s %-10s %8d %8d %10d%s\n", l.Code, l.Kind, l.Quantity, l.Sold, l.Remaining, flag)
	}
}

func printChain(out io.Writer, r *core.ChainReport) {
	status := "OK"
	if !r.Consistent {
		status = "BROKEN"
	}
	fmt.Fprintf(out, "Product %d: %d movements, final %d, pool %d: %s\n",
		r.ProductID, r.Movements, r.FinalStock, r.CurrentPool, status)
	for _, b := range r.Breaks {
		fmt.Fprintf(out, "  movement %d: expected previous %d, got %d\n", b.MovementID, b.Expected, b.Got)
	}
}

func printMovements(out io.Writer, movements []core.Movement) {
	fmt.Fprintf(out, "  %-8s %-12s %-12s %-12s %6s %12s\n", "ID", "TYPE", "FROM", "TO", "QTY", "POOL")
	for _, m := range movements {
		fmt.Fprintf(out, "  %-8d %-12s %-12s %-12s %6d %5d -> %-5d\n",
			m.ID, m.Type, m.From, m.To, m.Quantity, m.PreviousStock, m.NewStock)
	}
}

func printTransfer(out io.Writer, r *core.TransferResult) {
	fmt.Fprintf(out, "Moved %d of product %d: %s %d -> %d, %s %d -> %d\n",
		r.Quantity, r.ProductID,
		r.From.Endpoint, r.From.Before, r.From.After,
		r.To.Endpoint, r.To.Before, r.To.After)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
