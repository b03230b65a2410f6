package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

type Customer struct {
	ID         int64
	Name       string
	Email      string
	Country    string
	SignedUpAt time.Time
}

type Product struct {
	ID       int64
	Name     string
	Category string
	Price    float64
}

type Order struct {
	ID         int64
	CustomerID int64
	ProductID  int64
	Quantity   int
	Amount     float64
	Status     string
	OrderedAt  time.Time
}

var (
	firstNames = []string{"Ada", "Grace", "Alan", "Edsger", "Barbara", "Ken", "Frances", "Dennis", "Radia", "Linus"}
	lastNames  = []string{"Lovelace", "Hopper", "Turing", "Dijkstra", "Liskov", "Thompson", "Allen", "Ritchie", "Perlman", "Torvalds"}
	countries  = []string{"US", "DE", "GB", "IN", "JP", "BR"}
	categories = []string{"books", "electronics", "garden", "kitchen", "toys"}
	adjectives = []string{"Compact", "Deluxe", "Classic", "Smart", "Eco", "Portable"}
	nouns      = []string{"Lamp", "Kettle", "Speaker", "Planter", "Notebook", "Puzzle", "Blender", "Charger"}
)

// Generator produces a deterministic commerce dataset for a given seed.
type Generator struct {
	rnd  *rand.Rand
	now  func() time.Time
	prod []Product
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) Customers(n int) []Customer {
	out := make([]Customer, 0, n)
	base := g.now()
	for i := 1; i <= n; i++ {
		first := pickOne(g.rnd, firstNames)
		last := pickOne(g.rnd, lastNames)
		out = append(out, Customer{
			ID:         int64(i),
			Name:       first + " " + last,
			Email:      fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), i),
			Country:    pickOne(g.rnd, countries),
			SignedUpAt: base.Add(-time.Duration(g.rnd.Intn(720)) * time.Hour).Truncate(time.Second),
		})
	}
	return out
}

func (g *Generator) Products(n int) []Product {
	out := make([]Product, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Product{
			ID:       int64(i),
			Name:     pickOne(g.rnd, adjectives) + " " + pickOne(g.rnd, nouns),
			Category: pickOne(g.rnd, categories),
			Price:    round2(3 + g.rnd.Float64()*197),
		})
	}
	g.prod = out
	return out
}

// Orders draws n orders over the given customers and the products returned
// by the last Products call.
func (g *Generator) Orders(n, customers int) []Order {
	if len(g.prod) == 0 || customers <= 0 {
		return nil
	}
	out := make([]Order, 0, n)
	base := g.now()
	for i := 1; i <= n; i++ {
		product := g.prod[g.rnd.Intn(len(g.prod))]
		quantity := g.rnd.Intn(4) + 1
		out = append(out, Order{
			ID:         int64(i),
			CustomerID: int64(g.rnd.Intn(customers) + 1),
			ProductID:  product.ID,
			Quantity:   quantity,
			Amount:     round2(product.Price * float64(quantity)),
			Status:     g.pickStatus(),
			OrderedAt:  base.Add(-time.Duration(g.rnd.Intn(90*24*60)) * time.Minute).Truncate(time.Second),
		})
	}
	return out
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 70:
		return "delivered"
	case p < 85:
		return "shipped"
	case p < 95:
		return "pending"
	default:
		return "cancelled"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
