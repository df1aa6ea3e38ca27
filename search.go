package encryptedir

import (
	"fmt"
	"math"
	"strings"
)

// maxParamNumber is the PostgreSQL maximum parameter number.
const maxParamNumber = 65535

// isValidColumnName checks if a column name is safe for SQL interpolation.
// Must start with letter or underscore, followed by alphanumeric/underscore.
func isValidColumnName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			// First character: letter or underscore only (PostgreSQL requirement)
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_') {
				return false
			}
		} else {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r == '_') {
				return false
			}
		}
	}
	return true
}

// SearchCondition holds a SQL WHERE clause fragment and its arguments.
type SearchCondition struct {
	SQL  string // SQL fragment like "(key_id = $1 AND ssn_idx = $2) OR ..."
	Args []any  // Interleaved key_ids and blind indexes, or range bounds
}

func checkColumn(column string, paramOffset, params int) {
	if !isValidColumnName(column) {
		panic("encryptedir: invalid column name (must start with letter/underscore, contain only alphanumeric/underscore)")
	}
	if paramOffset < 1 || paramOffset+params-1 > maxParamNumber {
		panic(fmt.Sprintf("encryptedir: invalid paramOffset (must be 1-%d)", maxParamNumber))
	}
}

// BlindIndexCondition generates a SQL WHERE clause matching value's blind index under every
// generator in versions (key_id -> generator). Rows store the key_id that produced their
// index, so during a rotation both the old and the new key are searched.
//
// The generated SQL uses OR conditions for each key version, in key_id order:
//
//	(key_id = $1 AND {column}_idx = $2) OR (key_id = $3 AND {column}_idx = $4)
//
// paramOffset specifies the starting parameter number ($1, $2, etc.).
// An invalid column name or parameter range panics; those are programming errors.
//
// Example:
//
//	cond, err := encryptedir.BlindIndexCondition("ssn", "123-45-6789", encryptedir.SSNIndexConfig(), versions, 1)
//	query := fmt.Sprintf("SELECT * FROM customers WHERE %s", cond.SQL)
//	rows, _ := db.Query(query, cond.Args...)
func BlindIndexCondition(column, value string, cfg BlindIndexConfig, versions map[string]*BlindIndexGenerator, paramOffset int) (*SearchCondition, error) {
	checkColumn(column, paramOffset, len(versions)*2)
	if len(versions) == 0 {
		return &SearchCondition{SQL: "FALSE"}, nil
	}

	ids := sortedMapKeys(versions)
	parts := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids)*2)
	for _, keyID := range ids {
		idx, err := versions[keyID].CreateIndex(value, cfg)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf("(key_id = $%d AND %s_idx = $%d)", paramOffset, column, paramOffset+1))
		args = append(args, keyID, idx)
		paramOffset += 2
	}

	return &SearchCondition{
		SQL:  strings.Join(parts, " OR "),
		Args: args,
	}, nil
}

// AmountRangeCondition generates "{column}_ope >= $n AND {column}_ope <= $n+1" with both
// bounds mapped through o. A nil bound is left open; two nil bounds yield "TRUE".
// Bounds are passed as int64 because PostgreSQL has no unsigned 64-bit type, so o must
// use at most 63 ciphertext bits; wider codecs return ErrInvalidConfig.
func AmountRangeCondition(column string, o *OrderPreserving, minAmount, maxAmount *float64, paramOffset int) (*SearchCondition, error) {
	checkColumn(column, paramOffset, 2)
	if o.CiphertextMax() > math.MaxInt64 {
		return nil, invalid(ErrInvalidConfig, "range conditions need at most 63 ciphertext bits, codec max is %d", o.CiphertextMax())
	}

	var (
		parts []string
		args  []any
	)
	for _, bound := range []struct {
		amount *float64
		op     string
	}{{minAmount, ">="}, {maxAmount, "<="}} {
		if bound.amount == nil {
			continue
		}
		ct, err := o.EncryptAmount(*bound.amount)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf("%s_ope %s $%d", column, bound.op, paramOffset))
		args = append(args, int64(ct))
		paramOffset++
	}
	if len(parts) == 0 {
		return &SearchCondition{SQL: "TRUE"}, nil
	}
	return &SearchCondition{
		SQL:  strings.Join(parts, " AND "),
		Args: args,
	}, nil
}
