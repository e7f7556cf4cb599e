// Package all registers every supported warehouse backend.
//
// Blank-import it from a main package to make the backends available to
// warehouse.New without pulling their drivers into code that only needs the
// warehouse types:
//
//	import _ "salesdwh/internal/warehouse/all"
package all

import (
	_ "salesdwh/internal/warehouse/mssql"
	_ "salesdwh/internal/warehouse/postgres"
	_ "salesdwh/internal/warehouse/sqlite"
)
