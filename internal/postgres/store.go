package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Store implements orders.Store on Postgres.
type Store struct{ db DB }

func NewStore(db DB) *Store { return &Store{db: db} }

// querier is what both the pool and a pgx.Tx can do.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const productCols = `id, name, description, image_url, price, stock_quantity, owner_id, status, created_at, updated_at`

func (s *Store) Product(ctx context.Context, id int64) (orders.Product, error) {
	var p orders.Product
	err := s.db.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.Price, &p.StockQuantity, &p.OwnerID, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	if err != nil {
		return orders.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

const cartLineSelect = `
	SELECT p.id, p.name, p.description, p.image_url, p.price, p.stock_quantity, p.status,
	       c.quantity, c.created_at, c.updated_at
	FROM cart c
	JOIN products p ON p.id = c.product_id
	WHERE c.user_id = $1`

func (s *Store) CartLines(ctx context.Context, userID int64) ([]orders.CartLine, error) {
	return cartLines(ctx, s.db, cartLineSelect+` ORDER BY c.created_at DESC, c.id DESC`, userID)
}

func cartLines(ctx context.Context, q querier, sql string, userID int64) ([]orders.CartLine, error) {
	rows, err := q.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var out []orders.CartLine
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Description, &l.ImageURL, &l.Price, &l.StockQuantity, &l.Status,
			&l.Quantity, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const cartItemCols = `user_id, product_id, quantity, created_at, updated_at`

func scanCartItem(row pgx.Row) (orders.CartItem, error) {
	var c orders.CartItem
	err := row.Scan(&c.UserID, &c.ProductID, &c.Quantity, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.CartItem{}, orders.ErrCartItemNotFound
	}
	return c, err
}

func (s *Store) CartItem(ctx context.Context, userID, productID int64) (orders.CartItem, error) {
	return scanCartItem(s.db.QueryRow(ctx,
		`SELECT `+cartItemCols+` FROM cart WHERE user_id = $1 AND product_id = $2`, userID, productID))
}

// AddCartItem increments in a single upsert; the limit is checked by the
// statement itself, so concurrent adds cannot overshoot it.
func (s *Store) AddCartItem(ctx context.Context, userID, productID int64, qty, limit int) (orders.CartItem, bool, error) {
	c, err := scanCartItem(s.db.QueryRow(ctx, `
		INSERT INTO cart (user_id, product_id, quantity)
		SELECT $1::bigint, $2::bigint, $3::int WHERE $3::int <= $4::int
		ON CONFLICT (user_id, product_id) DO UPDATE
			SET quantity = cart.quantity + EXCLUDED.quantity, updated_at = now()
			WHERE cart.quantity + EXCLUDED.quantity <= $4::int
		RETURNING `+cartItemCols, userID, productID, qty, limit))
	switch {
	case err == nil:
		return c, true, nil
	case !errors.Is(err, orders.ErrCartItemNotFound):
		return orders.CartItem{}, false, fmt.Errorf("add cart item: %w", err)
	}

	// nothing written: over the limit
	cur, err := s.CartItem(ctx, userID, productID)
	switch {
	case errors.Is(err, orders.ErrCartItemNotFound):
		return orders.CartItem{}, false, nil
	case err != nil:
		return orders.CartItem{}, false, fmt.Errorf("read cart item: %w", err)
	}
	return cur, false, nil
}

func (s *Store) UpdateCartItem(ctx context.Context, userID, productID int64, qty int) (orders.CartItem, error) {
	return scanCartItem(s.db.QueryRow(ctx, `
		UPDATE cart SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2
		RETURNING `+cartItemCols, userID, productID, qty))
}

func (s *Store) DeleteCartItem(ctx context.Context, userID, productID int64) (bool, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM cart WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

const orderCols = `o.id, o.user_id, o.total_amount, o.status, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, err
}

func (s *Store) Order(ctx context.Context, id int64) (orders.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders o WHERE o.id = $1`, id))
	if err != nil {
		return orders.Order{}, err
	}
	list, err := attachItems(ctx, s.db, []orders.Order{o}, 0)
	if err != nil {
		return orders.Order{}, err
	}
	return list[0], nil
}

func (s *Store) ListBuyerOrders(ctx context.Context, userID int64, page orders.Page) ([]orders.Order, int, error) {
	return s.listOrders(ctx,
		`SELECT COUNT(*) FROM orders o WHERE o.user_id = $1`,
		`SELECT `+orderCols+` FROM orders o WHERE o.user_id = $1
		 ORDER BY o.created_at DESC, o.id DESC LIMIT $2 OFFSET $3`,
		[]any{userID}, 0, page)
}

func (s *Store) ListSellerOrders(ctx context.Context, sellerID int64, page orders.Page) ([]orders.Order, int, error) {
	const sellerFilter = `EXISTS (
		SELECT 1 FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = o.id AND p.owner_id = $1)`
	return s.listOrders(ctx,
		`SELECT COUNT(*) FROM orders o WHERE `+sellerFilter,
		`SELECT `+orderCols+` FROM orders o WHERE `+sellerFilter+`
		 ORDER BY o.created_at DESC, o.id DESC LIMIT $2 OFFSET $3`,
		[]any{sellerID}, sellerID, page)
}

func (s *Store) ListAllOrders(ctx context.Context, page orders.Page) ([]orders.Order, int, error) {
	return s.listOrders(ctx,
		`SELECT COUNT(*) FROM orders o`,
		`SELECT `+orderCols+` FROM orders o
		 ORDER BY o.created_at DESC, o.id DESC LIMIT $1 OFFSET $2`,
		nil, 0, page)
}

// listOrders runs a count and a page query. pageSQL takes the filter args
// followed by limit and offset.
func (s *Store) listOrders(ctx context.Context, countSQL, pageSQL string, args []any, sellerID int64, page orders.Page) ([]orders.Order, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	pageArgs := append(append([]any{}, args...), page.Size, page.Offset())
	rows, err := s.db.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	var list []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	list, err = attachItems(ctx, s.db, list, sellerID)
	return list, total, err
}

// attachItems loads the items of every listed order in one query. A
// non-zero sellerID keeps only that seller's lines.
func attachItems(ctx context.Context, q querier, list []orders.Order, sellerID int64) ([]orders.Order, error) {
	if len(list) == 0 {
		return list, nil
	}
	ids := make([]int64, len(list))
	idx := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		idx[o.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT oi.order_id, oi.product_id, p.name, oi.quantity, oi.price_at_time
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1) AND ($2::bigint = 0 OR p.owner_id = $2)
		ORDER BY oi.order_id, oi.id`, ids, sellerID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		i := idx[it.OrderID]
		list[i].Items = append(list[i].Items, it)
	}
	return list, rows.Err()
}

// InTx runs fn in a read-committed transaction. Row locks taken inside fn
// serialize checkouts of the same product.
func (s *Store) InTx(ctx context.Context, fn func(orders.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	finished := false
	defer func() {
		// only reached unfinished when fn panics
		if !finished {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		finished = true
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logging.FromContext(ctx).Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	finished = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockCartLines(ctx context.Context, userID int64) ([]orders.CartLine, error) {
	return cartLines(ctx, t.tx, cartLineSelect+` ORDER BY p.id FOR UPDATE`, userID)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`, productID, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock %d: %w", productID, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`, o.UserID, o.TotalAmount, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrderItems(ctx context.Context, orderID int64, items []orders.OrderItem) error {
	for _, it := range items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price_at_time)
			VALUES ($1, $2, $3, $4)`, orderID, it.ProductID, it.Quantity, it.Price); err != nil {
			return fmt.Errorf("insert order item %d: %w", it.ProductID, err)
		}
	}
	return nil
}

func (t *pgTx) ClearCart(ctx context.Context, userID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SetOrderStatus(ctx context.Context, id int64, status orders.Status) (time.Time, error) {
	var updated time.Time
	err := t.tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`, id, status,
	).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, orders.ErrOrderNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("set order status: %w", err)
	}
	return updated, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, env orders.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO order_events (event_id, event_type, order_id, body)
		VALUES ($1, $2, $3, $4)`, env.EventID, env.EventType, env.OrderID, body); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
