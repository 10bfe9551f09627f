// Package cart 维护单个购物会话内的购物车，纯内存，无网络或持久化副作用。
package cart

import (
	"errors"
	"sync"
)

var ErrInvalidProduct = errors.New("product id is required and price must not be negative")

// Product 是加入购物车时的商品快照，价格仅用于展示，实际扣款金额由服务端计算。
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Line 是购物车中的一行，以商品 ID 去重。
type Line struct {
	ProductID string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Snapshot 是结账开始时的不可变视图。
type Snapshot struct {
	Lines      []Line  `json:"lines"`
	TotalItems int     `json:"totalItems"`
	TotalPrice float64 `json:"totalPrice"`
}

// IsEmpty 判断快照是否没有任何商品行。
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// ProductIDs 按行顺序返回商品 ID。
func (s Snapshot) ProductIDs() []string {
	ids := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Aggregator 是一个会话范围的购物车。合计值每次读取时重新计算，不做缓存。
type Aggregator struct {
	mu    sync.RWMutex
	lines []Line
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add 新商品以数量 1 加入，已存在则数量加 1。
func (a *Aggregator) Add(p Product) error {
	if p.ID == "" || p.Price < 0 {
		return ErrInvalidProduct
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexOf(p.ID); i >= 0 {
		a.lines[i].Quantity++
		return nil
	}
	a.lines = append(a.lines, Line{ProductID: p.ID, Name: p.Name, UnitPrice: p.Price, Quantity: 1})
	return nil
}

// SetQuantity n<=0 时等同于 Remove，否则覆盖数量。商品不在购物车中时不做任何事。
func (a *Aggregator) SetQuantity(productID string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexOf(productID)
	if i < 0 {
		return
	}
	if n <= 0 {
		a.removeAt(i)
		return
	}
	a.lines[i].Quantity = n
}

func (a *Aggregator) Remove(productID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexOf(productID); i >= 0 {
		a.removeAt(i)
	}
}

func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = nil
}

func (a *Aggregator) Lines() []Line {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Line(nil), a.lines...)
}

func (a *Aggregator) TotalItems() int {
	return a.Snapshot().TotalItems
}

func (a *Aggregator) TotalPrice() float64 {
	return a.Snapshot().TotalPrice
}

// Snapshot 返回当前内容的拷贝及合计值。
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Snapshot{Lines: append([]Line(nil), a.lines...)}
	for _, l := range a.lines {
		s.TotalItems += l.Quantity
		s.TotalPrice += l.UnitPrice * float64(l.Quantity)
	}
	return s
}

func (a *Aggregator) indexOf(productID string) int {
	for i, l := range a.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (a *Aggregator) removeAt(i int) {
	a.lines = append(a.lines[:i], a.lines[i+1:]...)
}
