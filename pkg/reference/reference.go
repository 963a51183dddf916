package reference

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
)

// Module provides the snowflake node and the reference number generator.
var Module = fx.Module("reference",
	fx.Provide(NewNode),
	fx.Provide(NewGenerator),
)

// Prefixes tell support staff which record a number points at before they
// ever open the system.
const (
	prefixRental      = "RNT"
	prefixMaintenance = "MNT"
	prefixInvoice     = "INV"
	prefixPayment     = "PAY"
	prefixJournal     = "JE"
)

// NewNode builds the snowflake node used for reference number suffixes.
// Each running instance needs a distinct SNOWFLAKE_NODE_ID.
func NewNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// Generator mints unique business reference numbers. Primary keys stay
// UUIDs; these numbers exist for operators, printed documents and payment
// reconciliation.
type Generator struct {
	node  *snowflake.Node
	clock clock.Clock
}

type Params struct {
	fx.In

	Node  *snowflake.Node
	Clock clock.Clock
}

func NewGenerator(p Params) *Generator {
	return &Generator{node: p.Node, clock: p.Clock}
}

// Rental returns a rental number such as RNT-20260315-2RK9QWE4R01.
func (g *Generator) Rental() string { return g.next(prefixRental) }

// Maintenance returns a maintenance job number.
func (g *Generator) Maintenance() string { return g.next(prefixMaintenance) }

// Invoice returns an invoice number.
func (g *Generator) Invoice() string { return g.next(prefixInvoice) }

// Payment returns a payment number.
func (g *Generator) Payment() string { return g.next(prefixPayment) }

// Journal returns a journal entry number.
func (g *Generator) Journal() string { return g.next(prefixJournal) }

func (g *Generator) next(prefix string) string {
	return Format(prefix, g.clock.Now(), g.node.Generate())
}

// Format renders a reference number from its parts. The date segment keeps
// numbers roughly sortable for operators; uniqueness comes entirely from
// the snowflake suffix.
func Format(prefix string, at time.Time, id snowflake.ID) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), strings.ToUpper(id.Base36()))
}
