package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"orderboard/internal/orderstore/app/core"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/models"
)

// Pool is the subset of *pgxpool.Pool the repo needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type OrderRepo struct {
	db Pool
}

func NewOrderRepo(db Pool) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = `
	id::text,
	tenant_id,
	order_number,
	COALESCE(table_number, 0),
	COALESCE(customer_id, ''),
	status,
	subtotal::text,
	discount_amount::text,
	COALESCE(discount_reason, ''),
	tax_amount::text,
	total::text,
	created_at,
	updated_at`

func (or *OrderRepo) IsAlive(ctx context.Context) error {
	if err := or.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrDBConn, err)
	}
	return nil
}

func (or *OrderRepo) List(ctx context.Context, tenantID string, f models.ListFilters) ([]models.Order, error) {
	var statuses []string
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}

	q := `SELECT` + orderColumns + `
		FROM orders
		WHERE tenant_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2))
		  AND ($5::text = '' OR customer_id = $5)
		ORDER BY created_at, order_number
		LIMIT $3 OFFSET $4`

	rows, err := or.db.Query(ctx, q, tenantID, statuses, f.Limit, f.Offset, f.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	if err := loadItems(ctx, or.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (or *OrderRepo) Get(ctx context.Context, tenantID, orderID string) (models.Order, error) {
	return getOrder(ctx, or.db, tenantID, orderID, false)
}

func (or *OrderRepo) Create(ctx context.Context, order models.Order, changedBy string) (models.Order, error) {
	tx, err := or.db.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, `
		INSERT INTO tenant_order_seq (tenant_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET last_number = tenant_order_seq.last_number + 1
		RETURNING last_number
	`, order.TenantID).Scan(&order.Number)
	if err != nil {
		return models.Order{}, fmt.Errorf("next order number: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, tenant_id, order_number, table_number, customer_id, status,
			subtotal, discount_amount, discount_reason, tax_amount, total
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10::numeric, $11::numeric)
		RETURNING created_at, updated_at
	`,
		order.ID,
		order.TenantID,
		order.Number,
		nullInt(order.TableNumber),
		nullString(order.CustomerID),
		string(order.Status),
		order.Subtotal.String(),
		order.DiscountAmount.String(),
		nullString(order.DiscountReason),
		order.TaxAmount.String(),
		order.Total.String(),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return models.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (
				order_id, position, menu_item_id, name, quantity, unit_price, subtotal, instructions
			)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8)
		`, order.ID, i, item.MenuItemID, item.Name, item.Quantity,
			item.UnitPrice.String(), item.Subtotal.String(), nullString(item.Instructions))
		if err != nil {
			return models.Order{}, fmt.Errorf("insert item: %w", err)
		}
	}

	if err := insertLog(ctx, tx, order.ID, order.Status, changedBy, order.CreatedAt, ""); err != nil {
		return models.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

// CompareAndSetStatus moves the row only while it still holds upd.From. The
// row lock taken by the conditional UPDATE serializes concurrent writers.
func (or *OrderRepo) CompareAndSetStatus(ctx context.Context, upd core.StatusUpdate) (models.Order, error) {
	if _, err := uuid.Parse(upd.OrderID); err != nil {
		return models.Order{}, apperr.ErrNotFound
	}

	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := or.db.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $4,
		    updated_at = GREATEST(date_trunc('microseconds', $5::timestamptz), updated_at + interval '1 microsecond')
		WHERE tenant_id = $1 AND id = $2 AND status = $3
		RETURNING updated_at
	`, upd.TenantID, upd.OrderID, string(upd.From), string(upd.To), at).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the order is gone or another writer moved it first.
		var cur string
		err = tx.QueryRow(ctx,
			`SELECT status FROM orders WHERE tenant_id = $1 AND id = $2`,
			upd.TenantID, upd.OrderID,
		).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, apperr.ErrNotFound
		}
		if err != nil {
			return models.Order{}, fmt.Errorf("read current status: %w", err)
		}
		return models.Order{}, apperr.ErrStatusConflict
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("update status: %w", err)
	}

	if err := insertLog(ctx, tx, upd.OrderID, upd.To, upd.ChangedBy, updatedAt, upd.Note); err != nil {
		return models.Order{}, err
	}

	order, err := getOrder(ctx, tx, upd.TenantID, upd.OrderID, true)
	if err != nil {
		return models.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

func (or *OrderRepo) History(ctx context.Context, tenantID, orderID string) ([]models.StatusLog, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.ErrNotFound
	}

	rows, err := or.db.Query(ctx, `
		SELECT l.order_id::text, l.status, l.changed_by, l.changed_at, COALESCE(l.note, '')
		FROM order_status_log l
		JOIN orders o ON o.id = l.order_id
		WHERE o.tenant_id = $1 AND l.order_id = $2
		ORDER BY l.changed_at, l.id
	`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StatusLog, error) {
		var l models.StatusLog
		var status string
		err := row.Scan(&l.OrderID, &status, &l.ChangedBy, &l.ChangedAt, &l.Note)
		l.Status = models.Status(status)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	if len(logs) == 0 {
		if _, err := or.Get(ctx, tenantID, orderID); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

func getOrder(ctx context.Context, q querier, tenantID, orderID string, forUpdate bool) (models.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return models.Order{}, apperr.ErrNotFound
	}

	query := `SELECT` + orderColumns + ` FROM orders WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, tenantID, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	order, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("scan order: %w", err)
	}

	orders := []models.Order{order}
	if err := loadItems(ctx, q, orders); err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func loadItems(ctx context.Context, q querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT order_id::text, menu_item_id, name, quantity, unit_price::text, subtotal::text, COALESCE(instructions, '')
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID          string
			item             models.OrderItem
			unitPrice, total string
		)
		if err := rows.Scan(&orderID, &item.MenuItemID, &item.Name, &item.Quantity, &unitPrice, &total, &item.Instructions); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return fmt.Errorf("item unit price %q: %w", unitPrice, err)
		}
		if item.Subtotal, err = decimal.NewFromString(total); err != nil {
			return fmt.Errorf("item subtotal %q: %w", total, err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (models.Order, error) {
	var (
		o                                   models.Order
		status                              string
		subtotal, discount, tax, grandTotal string
	)
	err := row.Scan(
		&o.ID,
		&o.TenantID,
		&o.Number,
		&o.TableNumber,
		&o.CustomerID,
		&status,
		&subtotal,
		&discount,
		&o.DiscountReason,
		&tax,
		&grandTotal,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	// The column carries a CHECK constraint, so this only trips on a schema drift.
	if o.Status, err = models.ParseStatus(status); err != nil {
		return o, err
	}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{subtotal, &o.Subtotal},
		{discount, &o.DiscountAmount},
		{tax, &o.TaxAmount},
		{grandTotal, &o.Total},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return o, fmt.Errorf("numeric %q: %w", f.raw, err)
		}
	}
	return o, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLog(ctx context.Context, tx execer, orderID string, status models.Status, changedBy string, at time.Time, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at, note)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, string(status), changedBy, at, nullString(note))
	if err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
