// Package all wires every built-in storage engine into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete engine, which register
// their factories with the storage package. Importing it makes the following
// engine kinds available at runtime:
//
//   - "mysql"    (sqltarget/internal/storage/mysql)
//   - "postgres" (sqltarget/internal/storage/postgres)
//   - "mssql"    (sqltarget/internal/storage/mssql)
//   - "sqlite"   (sqltarget/internal/storage/sqlite)
//
// A binary that only needs a subset of engines can blank-import the specific
// engine packages instead of this one.
package all

import (
	_ "sqltarget/internal/storage/mssql"
	_ "sqltarget/internal/storage/mysql"
	_ "sqltarget/internal/storage/postgres"
	_ "sqltarget/internal/storage/sqlite"
)
