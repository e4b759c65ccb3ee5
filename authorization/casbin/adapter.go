package casbin

import (
	"database/sql"
	"fmt"

	sqladapter "github.com/Blank-Xu/sql-adapter"
)

const DefaultRuleTable = "casbin_rule"

// NewSQLAuthorizationProvider keeps rules in ruleTable of sqlDB, creating the
// table on first use. driverName picks the SQL dialect, such as "sqlite3".
func NewSQLAuthorizationProvider(sqlDB *sql.DB, driverName, ruleTable string) (*AuthorizationProvider, error) {
	if ruleTable == "" {
		ruleTable = DefaultRuleTable
	}

	adapter, err := sqladapter.NewAdapter(sqlDB, driverName, ruleTable)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin sql adapter: %w", err)
	}

	provider, err := NewAuthorizationProvider(adapter)
	if err != nil {
		return nil, err
	}

	return provider, nil
}
