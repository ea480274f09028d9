package mapping

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// MappedStatement is one compiled database operation.
type MappedStatement struct {
	ID        string
	Namespace string
	// Resource names the definition the statement came from, for diagnostics.
	Resource string
	Kind     core.StatementKind
	Source   SQLSource

	ParameterType reflect.Type
	// ResultMaps holds the result map used to build each row. Statements
	// declared with a result type get an inline map named "<id>-Inline".
	ResultMaps []*ResultMap

	// Cache is the namespace cache, nil when the namespace has none.
	Cache      cache.Cache
	FlushCache bool
	UseCache   bool

	// Timeout and FetchSize are passed to the adapter and never enforced here.
	Timeout   time.Duration
	FetchSize int

	// KeyProperty receives the generated key of an insert when set.
	KeyProperty string
}

// BoundSQL renders the statement for param.
func (ms *MappedStatement) BoundSQL(param any) (*BoundSQL, error) {
	if ms.Source == nil {
		return nil, core.Errorf(core.ErrConfiguration, "statement has no SQL source").WithStatement(ms.ID)
	}
	b, err := ms.Source.BoundSQL(param)
	if err != nil {
		return nil, core.Wrap(core.ErrBinding, ms.ID, err)
	}
	return b, nil
}

// ResultMap returns the primary result map, or nil for write statements.
func (ms *MappedStatement) ResultMap() *ResultMap {
	if len(ms.ResultMaps) == 0 {
		return nil
	}
	return ms.ResultMaps[0]
}

// HasNestedResultMaps reports whether any result map groups rows.
func (ms *MappedStatement) HasNestedResultMaps() bool {
	for _, rm := range ms.ResultMaps {
		if rm.HasNestedResultMaps {
			return true
		}
	}
	return false
}

func (ms *MappedStatement) String() string {
	return fmt.Sprintf("%s %s", ms.Kind, ms.ID)
}

// =============================================================================
// RowBounds
// =============================================================================

// NoRowLimit is the Limit of unbounded RowBounds.
const NoRowLimit = math.MaxInt32

// RowBounds restricts which rows of a result are mapped. Rows are skipped
// client-side; SQL-level paging belongs in the statement itself.
type RowBounds struct {
	Offset int
	Limit  int
}

// DefaultRowBounds maps every row.
var DefaultRowBounds = RowBounds{Offset: 0, Limit: NoRowLimit}

// NewRowBounds creates bounds skipping offset rows and mapping at most limit.
func NewRowBounds(offset, limit int) RowBounds {
	return RowBounds{Offset: offset, Limit: limit}
}

// IsDefault reports whether the bounds map every row.
func (rb RowBounds) IsDefault() bool {
	return rb.Offset <= 0 && (rb.Limit <= 0 || rb.Limit >= NoRowLimit)
}

// Normalize replaces a zero Limit with NoRowLimit.
func (rb RowBounds) Normalize() RowBounds {
	if rb.Limit <= 0 {
		rb.Limit = NoRowLimit
	}
	if rb.Offset < 0 {
		rb.Offset = 0
	}
	return rb
}
