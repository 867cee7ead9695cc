package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CatalogService maintains products, locations and materials. Catalog edits never
// write quantity columns; stock enters the system through ReceiveStock and
// ReceiveMaterial, which go through the ledger like every other movement.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, productID int) (*Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (*Product, error)

	ListLocations(ctx context.Context) ([]Location, error)
	CreateLocation(ctx context.Context, in LocationInput) (*Location, error)
	SetLocationActive(ctx context.Context, locationID int, active bool) (*Location, error)

	ListMaterials(ctx context.Context) ([]Material, error)
	CreateMaterial(ctx context.Context, in MaterialInput) (*Material, error)

	// ReceiveStock books new units into the pool (Sink → Pool adjustment).
	ReceiveStock(ctx context.Context, productID, qty int, ref, actor string) (*TransferResult, error)
	// ReceiveMaterial adds amount to a material balance.
	ReceiveMaterial(ctx context.Context, materialID int, amount decimal.Decimal, ref string) (*MaterialMovement, error)
}

type ProductInput struct {
	SKU                 string
	Name                string
	Kind                ProductKind
	SizeSpec            string
	MinStockLevel       int
	BulkMaterialID      *int
	PackagingMaterialID *int
}

type LocationInput struct {
	Kind LocationKind
	Code string
	Name string
}

type MaterialInput struct {
	Kind MaterialKind
	Name string
	Unit string
}

type catalogService struct {
	runner   *TxRunner
	notifier MovementNotifier
}

func NewCatalogService(runner *TxRunner, notifier MovementNotifier) CatalogService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &catalogService{runner: runner, notifier: notifier}
}

func (s *catalogService) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.runner.Pool().Query(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *catalogService) GetProduct(ctx context.Context, productID int) (*Product, error) {
	return getProduct(ctx, s.runner.Pool(), productID)
}

// ValidateProductInput checks the catalog rules that do not need the database.
func ValidateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.SKU) == "" || strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: sku and name are required", ErrInvalidInput)
	}
	switch in.Kind {
	case ProductGeneral, ProductService, ProductMaterialWrap:
	case ProductPerfume:
		if in.BulkMaterialID == nil || in.PackagingMaterialID == nil {
			return fmt.Errorf("%w: perfume products need bulk and packaging materials", ErrInvalidInput)
		}
		if *in.BulkMaterialID == *in.PackagingMaterialID {
			return fmt.Errorf("%w: bulk and packaging materials must differ", ErrInvalidInput)
		}
		if _, err := ParseVolumeML(in.SizeSpec); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	default:
		return fmt.Errorf("%w: unknown product kind %q", ErrInvalidInput, in.Kind)
	}
	if in.MinStockLevel < 0 {
		return fmt.Errorf("%w: min stock level must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *catalogService) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if in.Kind == "" {
		in.Kind = ProductGeneral
	}
	if err := ValidateProductInput(in); err != nil {
		return nil, err
	}
	p, err := scanProduct(s.runner.Pool().QueryRow(ctx, `
		INSERT INTO products (sku, name, kind, size_spec, min_stock_level, bulk_material_id, packaging_material_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+productColumns,
		in.SKU, in.Name, string(in.Kind), in.SizeSpec, in.MinStockLevel, in.BulkMaterialID, in.PackagingMaterialID))
	if err != nil {
		return nil, fmt.Errorf("failed to create product %s: %w", in.SKU, err)
	}
	return p, nil
}

const locationColumns = "id, kind, code, name, is_active"

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	if err := row.Scan(&l.ID, &l.Kind, &l.Code, &l.Name, &l.IsActive); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *catalogService) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := s.runner.Pool().Query(ctx, "SELECT "+locationColumns+" FROM locations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *catalogService) CreateLocation(ctx context.Context, in LocationInput) (*Location, error) {
	if in.Kind != LocationShop && in.Kind != LocationWarehouse {
		return nil, fmt.Errorf("%w: unknown location kind %q", ErrInvalidInput, in.Kind)
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: code and name are required", ErrInvalidInput)
	}
	l, err := scanLocation(s.runner.Pool().QueryRow(ctx, `
		INSERT INTO locations (kind, code, name)
		VALUES ($1, $2, $3)
		RETURNING `+locationColumns,
		string(in.Kind), in.Code, in.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create location %s: %w", in.Code, err)
	}
	return l, nil
}

// SetLocationActive toggles a location. Inactive locations keep their allocations
// but cannot receive stock.
func (s *catalogService) SetLocationActive(ctx context.Context, locationID int, active bool) (*Location, error) {
	l, err := scanLocation(s.runner.Pool().QueryRow(ctx, `
		UPDATE locations SET is_active = $2
		WHERE id = $1
		RETURNING `+locationColumns,
		locationID, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("location", locationID)
		}
		return nil, fmt.Errorf("failed to update location %d: %w", locationID, err)
	}
	return l, nil
}

func (s *catalogService) ListMaterials(ctx context.Context) ([]Material, error) {
	rows, err := s.runner.Pool().Query(ctx, "SELECT id, kind, name, unit, balance FROM materials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Kind, &m.Name, &m.Unit, &m.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *catalogService) CreateMaterial(ctx context.Context, in MaterialInput) (*Material, error) {
	switch in.Kind {
	case MaterialBulk, MaterialPackaging, MaterialRaw:
	default:
		return nil, fmt.Errorf("%w: unknown material kind %q", ErrInvalidInput, in.Kind)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: material name is required", ErrInvalidInput)
	}
	if in.Unit == "" {
		in.Unit = "ml"
		if in.Kind == MaterialPackaging {
			in.Unit = "pcs"
		}
	}
	var m Material
	err := s.runner.Pool().QueryRow(ctx, `
		INSERT INTO materials (kind, name, unit)
		VALUES ($1, $2, $3)
		RETURNING id, kind, name, unit, balance
	`, string(in.Kind), in.Name, in.Unit).Scan(&m.ID, &m.Kind, &m.Name, &m.Unit, &m.Balance)
	if err != nil {
		return nil, fmt.Errorf("failed to create material %s: %w", in.Name, err)
	}
	return &m, nil
}

func (s *catalogService) ReceiveStock(ctx context.Context, productID, qty int, ref, actor string) (*TransferResult, error) {
	var res *TransferResult
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		res, err = ReceiveTx(ctx, tx, productID, qty, ref, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.MovementsCommitted(ctx, res.Movements)
	return res, nil
}

func (s *catalogService) ReceiveMaterial(ctx context.Context, materialID int, amount decimal.Decimal, ref string) (*MaterialMovement, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidQuantity, amount)
	}
	var mm *MaterialMovement
	err := s.runner.InTx(ctx, func(tx pgx.Tx) error {
		m, err := lockMaterial(ctx, tx, materialID)
		if err != nil {
			return err
		}
		mm, err = changeMaterialBalance(ctx, tx, m, amount, MovementAdjustment, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mm, nil
}
