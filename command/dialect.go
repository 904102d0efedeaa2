package command

import "strings"

// Placeholder selects the positional parameter style for a target database.
//
//   - PlaceholderQuestion   "?"          (MySQL, SQLite)
//   - PlaceholderDollar     "$1, $2"     (PostgreSQL)
//   - PlaceholderAtP        "@p1, @p2"   (SQL Server)
//   - PlaceholderColonNum   ":1, :2"     (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

// Dialect captures what the assembler needs to know about a database.
type Dialect struct {
	Name        string
	Placeholder Placeholder
	// NamedArgs is set when the driver accepts sql.NamedArg, in which case
	// text commands are passed through untouched.
	NamedArgs bool
	// CallFormat renders a stored procedure call from its name and argument
	// list. Empty means the database has no stored procedures.
	CallFormat string
	// ReturnValues is set when the driver can bind a return value parameter.
	ReturnValues bool
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: PlaceholderDollar, CallFormat: "CALL %s(%s)"}
	MySQL    = Dialect{Name: "mysql", Placeholder: PlaceholderQuestion, CallFormat: "CALL %s(%s)"}
	SQLite   = Dialect{Name: "sqlite3", Placeholder: PlaceholderQuestion}
	// SQLServer covers drivers that bind sql.Named parameters directly.
	SQLServer = Dialect{
		Name:         "sqlserver",
		Placeholder:  PlaceholderAtP,
		NamedArgs:    true,
		CallFormat:   "EXEC %s %s",
		ReturnValues: true,
	}
	Oracle = Dialect{Name: "oracle", Placeholder: PlaceholderColonNum, CallFormat: "BEGIN %s(%s); END;"}
)

// DialectFor picks a Dialect based on a driver name string.
//
//	command.DialectFor("pgx")       // Postgres
//	command.DialectFor("sqlserver") // SQLServer
//	command.DialectFor("mysql")     // MySQL
func DialectFor(driverName string) Dialect {
	switch strings.ToLower(driverName) {
	case "pgx", "postgres", "postgresql", "lib/pq", "pg":
		return Postgres
	case "mysql", "mariadb":
		return MySQL
	case "sqlserver", "mssql":
		return SQLServer
	case "godror", "oracle", "goracle":
		return Oracle
	case "sqlite", "sqlite3":
		return SQLite
	default:
		d := SQLite
		d.Name = driverName
		return d
	}
}

func (d Dialect) placeholder(n int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + itoa(n)
	case PlaceholderAtP:
		return "@p" + itoa(n)
	case PlaceholderColonNum:
		return ":" + itoa(n)
	default:
		return "?"
	}
}
