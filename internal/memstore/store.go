package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
	"github.com/shopspring/decimal"
)

// Store keeps everything in process memory. A transaction holds the store
// lock for its whole duration and restores a snapshot when fn fails, so
// checkouts are serialized exactly like row locks on one hot product.
type Store struct {
	mu   sync.Mutex
	now  func() time.Time
	data state
}

type cartKey struct{ user, product int64 }

type cartRow struct {
	item orders.CartItem
	seq  int64
}

type eventRow struct {
	rec       outbox.Record
	published bool
}

type state struct {
	products map[int64]orders.Product
	cart     map[cartKey]cartRow
	orders   map[int64]orders.Order
	items    map[int64][]orders.OrderItem
	events   []eventRow

	productSeq, orderSeq, eventSeq, cartSeq int64
}

func New() *Store {
	return &Store{
		now: time.Now,
		data: state{
			products: map[int64]orders.Product{},
			cart:     map[cartKey]cartRow{},
			orders:   map[int64]orders.Order{},
			items:    map[int64][]orders.OrderItem{},
		},
	}
}

func (s state) clone() state {
	c := s
	c.products = make(map[int64]orders.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.cart = make(map[cartKey]cartRow, len(s.cart))
	for k, v := range s.cart {
		c.cart[k] = v
	}
	c.orders = make(map[int64]orders.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = make(map[int64][]orders.OrderItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = append([]orders.OrderItem(nil), v...)
	}
	c.events = append([]eventRow(nil), s.events...)
	return c
}

func (s *Store) stamp() time.Time { return s.now().UTC() }

// AddProduct seeds a catalog row. A zero ID is assigned from the sequence.
func (s *Store) AddProduct(p orders.Product) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.data.productSeq++
		p.ID = s.data.productSeq
	} else if p.ID > s.data.productSeq {
		s.data.productSeq = p.ID
	}
	if p.Status == "" {
		p.Status = orders.ProductActive
	}
	now := s.stamp()
	p.CreatedAt, p.UpdatedAt = now, now
	s.data.products[p.ID] = p
	return p
}

// SetStock overwrites stock_quantity the way a seller edit would.
func (s *Store) SetStock(productID int64, qty int) error {
	return s.updateProduct(productID, func(p *orders.Product) { p.StockQuantity = qty })
}

func (s *Store) SetPrice(productID int64, price string) error {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", price, err)
	}
	return s.updateProduct(productID, func(p *orders.Product) { p.Price = d })
}

func (s *Store) SetProductStatus(productID int64, st orders.ProductStatus) error {
	return s.updateProduct(productID, func(p *orders.Product) { p.Status = st })
}

func (s *Store) updateProduct(id int64, fn func(*orders.Product)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	if !ok {
		return orders.ErrProductNotFound
	}
	fn(&p)
	p.UpdatedAt = s.stamp()
	s.data.products[id] = p
	return nil
}

func (s *Store) Product(_ context.Context, id int64) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) CartLines(_ context.Context, userID int64) ([]orders.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.data.userCart(userID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	return s.data.lines(rows), nil
}

func (s *Store) CartItem(_ context.Context, userID, productID int64) (orders.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.data.cart[cartKey{userID, productID}]
	if !ok {
		return orders.CartItem{}, orders.ErrCartItemNotFound
	}
	return row.item, nil
}

func (s *Store) AddCartItem(_ context.Context, userID, productID int64, qty, limit int) (orders.CartItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cartKey{userID, productID}
	row, ok := s.data.cart[key]
	if row.item.Quantity+qty > limit {
		return row.item, false, nil
	}
	now := s.stamp()
	if !ok {
		s.data.cartSeq++
		row = cartRow{
			item: orders.CartItem{UserID: userID, ProductID: productID, CreatedAt: now},
			seq:  s.data.cartSeq,
		}
	}
	row.item.Quantity += qty
	row.item.UpdatedAt = now
	s.data.cart[key] = row
	return row.item, true, nil
}

func (s *Store) UpdateCartItem(_ context.Context, userID, productID int64, qty int) (orders.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cartKey{userID, productID}
	row, ok := s.data.cart[key]
	if !ok {
		return orders.CartItem{}, orders.ErrCartItemNotFound
	}
	row.item.Quantity = qty
	row.item.UpdatedAt = s.stamp()
	s.data.cart[key] = row
	return row.item, nil
}

func (s *Store) DeleteCartItem(_ context.Context, userID, productID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cartKey{userID, productID}
	if _, ok := s.data.cart[key]; !ok {
		return false, nil
	}
	delete(s.data.cart, key)
	return true, nil
}

func (s *Store) Order(_ context.Context, id int64) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	o.Items = s.data.orderItems(id, 0)
	return o, nil
}

func (s *Store) ListBuyerOrders(_ context.Context, userID int64, page orders.Page) ([]orders.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listOrders(page, 0, func(o orders.Order) bool { return o.UserID == userID })
}

func (s *Store) ListSellerOrders(_ context.Context, sellerID int64, page orders.Page) ([]orders.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listOrders(page, sellerID, func(o orders.Order) bool {
		return len(s.data.orderItems(o.ID, sellerID)) > 0
	})
}

func (s *Store) ListAllOrders(_ context.Context, page orders.Page) ([]orders.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listOrders(page, 0, func(orders.Order) bool { return true })
}

// Pending and MarkPublished let the outbox relay run against memory too.
func (s *Store) Pending(_ context.Context, limit int) ([]outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Record
	for _, ev := range s.data.events {
		if ev.published {
			continue
		}
		out = append(out, ev.rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.data.events {
		if want[s.data.events[i].rec.ID] {
			s.data.events[i].published = true
		}
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	if err := fn(&tx{s: s}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (d *state) userCart(userID int64) []cartRow {
	var rows []cartRow
	for k, row := range d.cart {
		if k.user == userID {
			rows = append(rows, row)
		}
	}
	return rows
}

// lines joins cart rows with products; rows whose product vanished are skipped.
func (d *state) lines(rows []cartRow) []orders.CartLine {
	out := make([]orders.CartLine, 0, len(rows))
	for _, r := range rows {
		p, ok := d.products[r.item.ProductID]
		if !ok {
			continue
		}
		out = append(out, orders.CartLine{
			ProductID:     p.ID,
			Name:          p.Name,
			Description:   p.Description,
			ImageURL:      p.ImageURL,
			Price:         p.Price,
			StockQuantity: p.StockQuantity,
			Status:        p.Status,
			Quantity:      r.item.Quantity,
			CreatedAt:     r.item.CreatedAt,
			UpdatedAt:     r.item.UpdatedAt,
		})
	}
	return out
}

// orderItems returns the items of an order with live product names. A
// non-zero sellerID keeps only that seller's lines.
func (d *state) orderItems(orderID, sellerID int64) []orders.OrderItem {
	var out []orders.OrderItem
	for _, it := range d.items[orderID] {
		p := d.products[it.ProductID]
		if sellerID != 0 && p.OwnerID != sellerID {
			continue
		}
		if p.Name != "" {
			it.ProductName = p.Name
		}
		out = append(out, it)
	}
	return out
}

func (d *state) listOrders(page orders.Page, sellerID int64, keep func(orders.Order) bool) ([]orders.Order, int, error) {
	var all []orders.Order
	for _, o := range d.orders {
		if keep(o) {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	page = page.Normalize()
	total := len(all)
	from := page.Offset()
	if from < 0 || from > total {
		from = total
	}
	to := from + page.Size
	if to > total {
		to = total
	}
	out := make([]orders.Order, 0, to-from)
	for _, o := range all[from:to] {
		o.Items = d.orderItems(o.ID, sellerID)
		out = append(out, o)
	}
	return out, total, nil
}

type tx struct{ s *Store }

func (t *tx) LockCartLines(_ context.Context, userID int64) ([]orders.CartLine, error) {
	rows := t.s.data.userCart(userID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].item.ProductID < rows[j].item.ProductID })
	return t.s.data.lines(rows), nil
}

func (t *tx) DecrementStock(_ context.Context, productID int64, qty int) (bool, error) {
	p, ok := t.s.data.products[productID]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	p.UpdatedAt = t.s.stamp()
	t.s.data.products[productID] = p
	return true, nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	t.s.data.orderSeq++
	now := t.s.stamp()
	o.ID, o.CreatedAt, o.UpdatedAt = t.s.data.orderSeq, now, now
	stored := *o
	stored.Items = nil
	t.s.data.orders[o.ID] = stored
	return nil
}

func (t *tx) InsertOrderItems(_ context.Context, orderID int64, items []orders.OrderItem) error {
	if _, ok := t.s.data.orders[orderID]; !ok {
		return fmt.Errorf("insert items: order %d does not exist", orderID)
	}
	for _, it := range items {
		it.OrderID = orderID
		t.s.data.items[orderID] = append(t.s.data.items[orderID], it)
	}
	return nil
}

func (t *tx) ClearCart(_ context.Context, userID int64) error {
	for k := range t.s.data.cart {
		if k.user == userID {
			delete(t.s.data.cart, k)
		}
	}
	return nil
}

func (t *tx) LockOrder(_ context.Context, id int64) (orders.Order, error) {
	o, ok := t.s.data.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (t *tx) SetOrderStatus(_ context.Context, id int64, status orders.Status) (time.Time, error) {
	o, ok := t.s.data.orders[id]
	if !ok {
		return time.Time{}, orders.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = t.s.stamp()
	t.s.data.orders[id] = o
	return o.UpdatedAt, nil
}

func (t *tx) AppendEvent(_ context.Context, env orders.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	t.s.data.eventSeq++
	t.s.data.events = append(t.s.data.events, eventRow{rec: outbox.Record{
		ID:        t.s.data.eventSeq,
		OrderID:   env.OrderID,
		EventType: env.EventType,
		Body:      b,
	}})
	return nil
}
