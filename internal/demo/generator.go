// Package demo generates a sales workbook with realistic fake data for trying
// out ingestion and questions end to end.
package demo

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/jaswdr/faker"

	"github.com/tabquery/tabquery/internal/sheets"
)

var (
	products = []string{"Laptop", "Monitor", "Keyboard", "Mouse", "Headset", "Webcam", "Dock"}
	channels = []string{"online", "retail", "partner"}
)

type Generator struct {
	rnd   *rand.Rand
	faker faker.Faker
	now   func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		faker: faker.NewWithSeed(rand.NewSource(seed)),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Workbook returns a Customers sheet and an Orders sheet whose customer
// column refers to the customers by name.
func (g *Generator) Workbook(customers, orders int) []sheets.Sheet {
	now := g.now().Truncate(24 * time.Hour)

	customerSheet := sheets.Sheet{
		Name:   "Customers",
		Header: []string{"Customer", "Email", "City", "Country", "Signup Date", "Newsletter"},
		Rows:   make([][]string, 0, customers),
	}
	names := make([]string, 0, customers)
	seen := make(map[string]struct{}, customers)
	for len(names) < customers {
		name := g.faker.Person().Name()
		if _, ok := seen[name]; ok {
			name = fmt.Sprintf("%s %d", name, len(names)+1)
		}
		seen[name] = struct{}{}
		names = append(names, name)
		signup := now.AddDate(0, 0, -g.rnd.Intn(3*365))
		customerSheet.Rows = append(customerSheet.Rows, []string{
			name,
			g.faker.Internet().Email(),
			g.faker.Address().City(),
			g.faker.Address().Country(),
			signup.Format("2006-01-02"),
			yesNo(g.rnd.Intn(3) == 0),
		})
	}

	orderSheet := sheets.Sheet{
		Name:   "Orders",
		Header: []string{"Order ID", "Customer", "Product", "Channel", "Quantity", "Unit Price", "Ordered On"},
		Rows:   make([][]string, 0, orders),
	}
	for i := 0; i < orders; i++ {
		product := products[g.rnd.Intn(len(products))]
		orderedAt := now.Add(-time.Duration(g.rnd.Intn(365*24)) * time.Hour)
		orderSheet.Rows = append(orderSheet.Rows, []string{
			strconv.Itoa(10000 + i),
			names[g.rnd.Intn(len(names))],
			product,
			channels[g.rnd.Intn(len(channels))],
			strconv.Itoa(1 + g.rnd.Intn(12)),
			strconv.FormatFloat(g.unitPrice(product), 'f', 2, 64),
			orderedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return []sheets.Sheet{orderSheet, customerSheet}
}

func (g *Generator) unitPrice(product string) float64 {
	base := map[string]float64{
		"Laptop":   900,
		"Monitor":  220,
		"Keyboard": 60,
		"Mouse":    25,
		"Headset":  80,
		"Webcam":   70,
		"Dock":     150,
	}[product]
	price := base * (0.85 + g.rnd.Float64()*0.3)
	return math.Round(price*100) / 100
}

// Write renders the workbook in format. CSV carries only the Orders sheet.
func Write(w io.Writer, format Format, workbook []sheets.Sheet) error {
	switch format {
	case FormatXLSX:
		return sheets.WriteXLSX(w, workbook)
	case FormatCSV:
		if len(workbook) == 0 {
			return fmt.Errorf("workbook is empty")
		}
		return sheets.WriteCSV(w, workbook[0])
	default:
		return fmt.Errorf("unsupported demo format %q", format)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
