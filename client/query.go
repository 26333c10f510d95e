package client

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sysdb/ndbclient/ndb"
)

// Int64Param builds an INT64 parameter value.
func Int64Param(v int64) ndb.Value { return ndb.Value{Tag: ndb.TagInt64, Int: v} }

// Int32Param builds an INT32 parameter value.
func Int32Param(v int32) ndb.Value { return ndb.Value{Tag: ndb.TagInt32, Int: int64(v)} }

// Float64Param builds a FLOAT64 parameter value.
func Float64Param(v float64) ndb.Value { return ndb.Value{Tag: ndb.TagFloat64, Float: v} }

// StringParam builds a STRING parameter value.
func StringParam(v string) ndb.Value { return ndb.Value{Tag: ndb.TagString, Str: v} }

// VarbinaryParam builds a VARBINARY parameter value.
func VarbinaryParam(v []byte) ndb.Value { return ndb.Value{Tag: ndb.TagVarbinary, Bytes: v} }

// TimestampParam builds a TIMESTAMP parameter value.
func TimestampParam(v time.Time) ndb.Value { return ndb.Value{Tag: ndb.TagTimestamp, Timestamp: v} }

// DecimalParam builds a DECIMAL parameter value.
func DecimalParam(v decimal.Decimal) ndb.Value { return ndb.Value{Tag: ndb.TagDecimal, Decimal: v} }

// NullParam builds a null parameter value of the given tag: a null is a
// per-type sentinel, not the absence of a value.
func NullParam(tag ndb.Tag) ndb.Value { return ndb.Value{Tag: tag, Null: true} }

// ArrayParam builds an ARRAY parameter value of elemTag-typed elements.
// Arrays are parameter-only; they are never returned in a result table.
func ArrayParam(elemTag ndb.Tag, elems ...ndb.Value) ndb.Value {
	return ndb.Value{Tag: ndb.TagArray, ElemTag: elemTag, Array: elems}
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
