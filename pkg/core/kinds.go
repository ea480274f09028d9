package core

import "strings"

// =============================================================================
// StatementKind
// =============================================================================

// StatementKind classifies a mapped statement.
type StatementKind int

// StatementKind values.
const (
	KindUnknown StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

// String returns the lower-case name of the kind.
func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// IsWrite reports whether statements of this kind modify data.
func (k StatementKind) IsWrite() bool {
	return k == KindInsert || k == KindUpdate || k == KindDelete
}

// ParseStatementKind converts a string to a StatementKind.
// Returns KindUnknown and false for unrecognized input.
func ParseStatementKind(s string) (StatementKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select", "query":
		return KindSelect, true
	case "insert":
		return KindInsert, true
	case "update":
		return KindUpdate, true
	case "delete":
		return KindDelete, true
	default:
		return KindUnknown, false
	}
}

// =============================================================================
// DBType
// =============================================================================

// DBType is the target database type hint attached to a bound value.
type DBType int

// DBType values. DBTypeUnset means "let the driver decide".
const (
	DBTypeUnset DBType = iota
	DBTypeNull
	DBTypeVarchar
	DBTypeChar
	DBTypeText
	DBTypeSmallInt
	DBTypeInteger
	DBTypeBigInt
	DBTypeReal
	DBTypeDouble
	DBTypeDecimal
	DBTypeBoolean
	DBTypeDate
	DBTypeTime
	DBTypeTimestamp
	DBTypeBinary
	DBTypeJSON
	DBTypeUUID
	DBTypeArray
	DBTypeOther
)

var dbTypeNames = map[DBType]string{
	DBTypeUnset:     "",
	DBTypeNull:      "NULL",
	DBTypeVarchar:   "VARCHAR",
	DBTypeChar:      "CHAR",
	DBTypeText:      "TEXT",
	DBTypeSmallInt:  "SMALLINT",
	DBTypeInteger:   "INTEGER",
	DBTypeBigInt:    "BIGINT",
	DBTypeReal:      "REAL",
	DBTypeDouble:    "DOUBLE",
	DBTypeDecimal:   "DECIMAL",
	DBTypeBoolean:   "BOOLEAN",
	DBTypeDate:      "DATE",
	DBTypeTime:      "TIME",
	DBTypeTimestamp: "TIMESTAMP",
	DBTypeBinary:    "BINARY",
	DBTypeJSON:      "JSON",
	DBTypeUUID:      "UUID",
	DBTypeArray:     "ARRAY",
	DBTypeOther:     "OTHER",
}

// String returns the upper-case SQL name of the type.
func (t DBType) String() string {
	if name, ok := dbTypeNames[t]; ok {
		return name
	}
	return "OTHER"
}

// ParseDBType converts a type name (case-insensitive) to a DBType.
// Common aliases (INT, FLOAT, BOOL, BLOB, ...) are accepted.
func ParseDBType(s string) (DBType, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "":
		return DBTypeUnset, true
	case "INT", "INT4":
		return DBTypeInteger, true
	case "INT8":
		return DBTypeBigInt, true
	case "INT2":
		return DBTypeSmallInt, true
	case "FLOAT", "FLOAT8":
		return DBTypeDouble, true
	case "FLOAT4":
		return DBTypeReal, true
	case "NUMERIC":
		return DBTypeDecimal, true
	case "BOOL", "BIT":
		return DBTypeBoolean, true
	case "BLOB", "BYTEA", "VARBINARY":
		return DBTypeBinary, true
	case "JSONB":
		return DBTypeJSON, true
	case "DATETIME", "TIMESTAMPTZ":
		return DBTypeTimestamp, true
	}
	for t, n := range dbTypeNames {
		if n != "" && n == name {
			return t, true
		}
	}
	return DBTypeOther, false
}
