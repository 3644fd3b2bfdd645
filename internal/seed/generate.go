// Package seed generates deterministic demo rows for a GridStore,
// adapted from the original project's fixgres_demo fixtures and its
// cmd/faker_test determinism probe, but producing the tabular rows
// gridstore actually operates on instead of a single relational User
// model.
package seed

import (
	"fmt"
	"io"
	"math/rand"

	faker "github.com/go-faker/faker/v4"

	"github.com/colgrid/gridstore/internal/store"
)

// Quote is the shape of one demo row: a ticker-like symbol, a company
// name, and a price, matching the AAPL/AMZN/APPLESAUCE-style fixtures
// gridstore's own tests use.
type Quote struct {
	ID    string  `faker:"-"`
	Sym   string  `faker:"-"`
	Name  string  `faker:"name"`
	Price float64 `faker:"-"`
}

// Generator produces a sequence of demo Quote rows. Two Generators built
// with the same seed produce the same id, sym and px values, which is
// what makes it usable both as a one-off demo-data populator and as a
// repeatable test fixture. The name column comes from faker's own
// shared random source, which is not seeded here, so names are not
// reproduced.
type Generator struct {
	rng *rand.Rand
	src io.Reader
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), src: NewDeterministicSource(seed)}
}

// Rows produces n demo rows shaped for store.New's default quote schema
// (see Schema), ready to hand to Store.LoadRows.
func (g *Generator) Rows(n int) ([]store.Row, error) {
	// faker's crypto source is process-wide; point it at this
	// Generator's own stream so UUIDs do not depend on other Generators.
	faker.SetCryptoSource(g.src)
	rows := make([]store.Row, n)
	for i := 0; i < n; i++ {
		var q Quote
		if err := faker.FakeData(&q); err != nil {
			return nil, fmt.Errorf("generate demo row %d: %w", i, err)
		}
		q.ID = faker.UUIDHyphenated()
		q.Sym = g.symbol()
		q.Price = g.price()

		rows[i] = store.Row{
			"id":   q.ID,
			"sym":  q.Sym,
			"name": q.Name,
			"px":   q.Price,
		}
	}
	return rows, nil
}

// Schema is the Store schema the demo dataset is generated against.
func Schema() []store.Column {
	return []store.Column{
		{Name: "id", Type: store.TypeString, PrimaryKey: true},
		{Name: "sym", Type: store.TypeString, Indexed: true},
		{Name: "name", Type: store.TypeString, Indexed: true},
		{Name: "px", Type: store.TypeNumber},
	}
}

func (g *Generator) symbol() string {
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	n := 3 + g.rng.Intn(3) // 3-5 letter tickers
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[g.rng.Intn(len(letters))]
	}
	return string(b)
}

func (g *Generator) price() float64 {
	return float64(g.rng.Intn(500_00)) / 100.0
}
