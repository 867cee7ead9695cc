package app

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the caller's role or shop does not permit an action.
var ErrForbidden = errors.New("forbidden")

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// Identity is the authenticated caller. ShopID binds managers and cashiers to one
// shop; nil means the caller may act on any shop its role allows.
type Identity struct {
	UserID string
	Role   Role
	ShopID *int
}

// Actor is the value recorded on movements and orders.
func (id Identity) Actor() string {
	if id.UserID == "" {
		return "user:anonymous"
	}
	return "user:" + id.UserID
}

// SystemIdentity is used by background jobs and the operator CLI.
func SystemIdentity(name string) Identity {
	return Identity{UserID: name, Role: RoleAdmin}
}

type Action string

const (
	ActionAssign        Action = "assign"
	ActionTransfer      Action = "transfer"
	ActionReassign      Action = "reassign"
	ActionUnassign      Action = "unassign"
	ActionReceiveStock  Action = "receive_stock"
	ActionManageCatalog Action = "manage_catalog"
	ActionCreateOrder   Action = "create_order"
	ActionManageOrder   Action = "manage_order"
	ActionDeleteOrder   Action = "delete_order"
	ActionRestockOrder  Action = "restock_order"
	ActionSweep         Action = "sweep"
	ActionViewStock     Action = "view_stock"
)

var adminOnly = map[Action]bool{
	ActionUnassign:      true,
	ActionReceiveStock:  true,
	ActionManageCatalog: true,
	ActionDeleteOrder:   true,
	ActionRestockOrder:  true,
	ActionSweep:         true,
}

var cashierDenied = map[Action]bool{
	ActionAssign:   true,
	ActionTransfer: true,
	ActionReassign: true,
	ActionUnassign: true,
}

// Authorize checks id against action. shops lists the shops the action touches; a
// nil entry stands for a target outside any shop (the pool or a global order).
// Shop-bound callers may only touch their own shop.
func Authorize(id Identity, action Action, shops ...*int) error {
	switch id.Role {
	case RoleAdmin:
		return nil
	case RoleManager, RoleCashier:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, id.Role)
	}

	if adminOnly[action] {
		return fmt.Errorf("%w: %s requires admin", ErrForbidden, action)
	}
	if id.Role == RoleCashier && cashierDenied[action] {
		return fmt.Errorf("%w: cashiers may not %s", ErrForbidden, action)
	}

	if id.ShopID == nil {
		return nil
	}
	for _, shop := range shops {
		if shop == nil {
			return fmt.Errorf("%w: %s outside shop %d", ErrForbidden, action, *id.ShopID)
		}
		if *shop != *id.ShopID {
			return fmt.Errorf("%w: shop %d is not shop %d", ErrForbidden, *shop, *id.ShopID)
		}
	}
	return nil
}
