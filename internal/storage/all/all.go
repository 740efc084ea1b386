// Package all registers every storage backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "mislaka/internal/storage/mssql"
	_ "mislaka/internal/storage/postgres"
	_ "mislaka/internal/storage/sqlite"
)
