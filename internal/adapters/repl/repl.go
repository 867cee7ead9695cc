package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"inventory-engine/internal/adapters/cli"
	"inventory-engine/internal/app"
)

var errExit = errors.New("exit")

// Session is an interactive operator console. Order lifecycle commands are handled
// here; everything else is passed through to the one-shot cli commands.
type Session struct {
	svc    app.ApplicationService
	id     app.Identity
	reader *bufio.Reader
	out    io.Writer
}

func NewSession(svc app.ApplicationService, id app.Identity, in io.Reader, out io.Writer) *Session {
	return &Session{svc: svc, id: id, reader: bufio.NewReader(in), out: out}
}

// Run reads commands until /exit or end of input.
func (s *Session) Run(ctx context.Context) {
	fmt.Fprintln(s.out, "Stock Engine console")
	fmt.Fprintf(s.out, "Signed in as %s (%s). Type /help for commands.\n", s.id.Actor(), s.id.Role)
	fmt.Fprintln(s.out, strings.Repeat("-", 62))

	for {
		fmt.Fprint(s.out, "\n> ")
		input, err := s.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			if derr := s.dispatch(ctx, input); derr != nil {
				if errors.Is(derr, errExit) {
					fmt.Fprintln(s.out, "Goodbye!")
					return
				}
				fmt.Fprintf(s.out, "Error: %v\n", derr)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) dispatch(ctx context.Context, input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "orders":
		req := app.ListOrdersRequest{Limit: 20}
		if len(args) > 0 {
			req.Status = args[0]
		}
		result, err := s.svc.ListOrders(ctx, s.id, req)
		if err != nil {
			return err
		}
		printOrders(s.out, result.Orders)

	case "order", "show":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		result, err := s.svc.GetOrder(ctx, s.id, ref)
		if err != nil {
			return err
		}
		printOrderDetail(s.out, result.Order)

	case "new-order":
		return s.newOrder(ctx, args)

	case "confirm":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		result, err := s.svc.ConfirmOrder(ctx, s.id, ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Order %s CONFIRMED.\n", result.Order.OrderNumber)

	case "process":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		pl, err := s.svc.ProcessOrder(ctx, s.id, ref)
		if err != nil {
			return err
		}
		printPickingList(s.out, pl)

	case "fulfill":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		tracking := ""
		if len(args) > 1 {
			tracking = args[1]
		}
		result, err := s.svc.CompleteFulfillment(ctx, s.id, ref, tracking)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Order %s FULFILLED. Reserved stock consumed.\n", result.Order.OrderNumber)

	case "complete":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		result, err := s.svc.CompleteOrder(ctx, s.id, ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Order %s COMPLETED.\n", result.Order.OrderNumber)

	case "cancel":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		result, err := s.svc.CancelOrder(ctx, s.id, ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Order %s CANCELLED. Reservations released.\n", result.Order.OrderNumber)

	case "restock":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		result, err := s.svc.RestockCancelledOrder(ctx, s.id, ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Order %s restocked.\n", result.Order.OrderNumber)

	case "reservations", "res":
		ref, err := orderRef(cmd, args)
		if err != nil {
			return err
		}
		rs, err := s.svc.ListReservations(ctx, s.id, ref)
		if err != nil {
			return err
		}
		printReservations(s.out, rs)

	case "help", "h":
		printHelp(s.out)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		return cli.Run(ctx, s.svc, s.id, tokens, s.out)
	}
	return nil
}

func orderRef(cmd string, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: /%s <order-ref>", cmd)
	}
	return args[0], nil
}
