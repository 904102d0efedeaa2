package command

import (
	"database/sql"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/goliatone/go-dbcommand/dberrors"
)

// Kind tells the assembler how to render Spec.Text.
type Kind int

const (
	// Text is a literal SQL statement.
	Text Kind = iota
	// StoredProcedure is the name of a procedure, rendered with the dialect's call format.
	StoredProcedure
)

func (k Kind) String() string {
	if k == StoredProcedure {
		return "StoredProcedure"
	}
	return "Text"
}

// Spec describes what to run. It is a value and is never modified after creation.
type Spec struct {
	Text           string
	Kind           Kind
	TimeoutSeconds int
}

// Procedure returns a stored procedure Spec.
func Procedure(name string) Spec {
	return Spec{Text: name, Kind: StoredProcedure}
}

// Query returns a text Spec.
func Query(text string) Spec {
	return Spec{Text: text, Kind: Text}
}

// WithTimeout returns a copy of s with the given timeout.
func (s Spec) WithTimeout(seconds int) Spec {
	s.TimeoutSeconds = seconds
	return s
}

// Timeout returns the per-attempt timeout, zero meaning none.
func (s Spec) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Validate reports a ConfigError for an empty command.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return &dberrors.ConfigError{Field: "Spec.Text", Message: "must not be empty"}
	}
	if s.TimeoutSeconds < 0 {
		return &dberrors.ConfigError{Field: "Spec.TimeoutSeconds", Message: "must be non-negative"}
	}
	return nil
}

// Direction is the direction of a bound parameter.
type Direction int

const (
	Input Direction = iota
	Output
	ReturnValue
)

func (d Direction) String() string {
	switch d {
	case Output:
		return "Output"
	case ReturnValue:
		return "ReturnValue"
	default:
		return "Input"
	}
}

// DbType selects the destination used for output and return values.
type DbType int

const (
	Unspecified DbType = iota
	String
	Int32
	Int64
	Float64
	Bool
	Time
	Bytes
)

func (t DbType) destination() any {
	switch t {
	case String:
		return new(sql.NullString)
	case Int32:
		return new(sql.NullInt32)
	case Int64:
		return new(sql.NullInt64)
	case Float64:
		return new(sql.NullFloat64)
	case Bool:
		return new(sql.NullBool)
	case Time:
		return new(sql.NullTime)
	case Bytes:
		return new([]byte)
	default:
		return new(any)
	}
}

// readDestination returns the Go value held by an output destination, nil for SQL NULL.
func readDestination(dest any) any {
	switch d := dest.(type) {
	case driver.Valuer:
		v, err := d.Value()
		if err != nil {
			return nil
		}
		return v
	case *[]byte:
		if *d == nil {
			return nil
		}
		return *d
	case *any:
		return *d
	default:
		return nil
	}
}
