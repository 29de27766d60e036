package configstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/sqlitedb"
	"github.com/GuramDuka/homeostas-go/internal/variant"
)

func randomNonzero() uint64 {
	return sqlitedb.RandomID64()
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite surfaces this as a plain error whose message
// contains "UNIQUE constraint failed"; there is no typed sentinel exported
// for it, so this module matches the message the same way the rest of the
// driver's users do.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) load(id int64) (variant.Variant, bool, error) {
	var kind int
	var vBool sql.NullInt64
	var vInt64 sql.NullInt64
	var vFloat64 sql.NullFloat64
	var vText sql.NullString
	var vBytes []byte

	err := s.db.QueryRow(`SELECT kind, v_bool, v_int64, v_float64, v_text, v_bytes FROM variable WHERE id = ?`, id).
		Scan(&kind, &vBool, &vInt64, &vFloat64, &vText, &vBytes)
	if err == sql.ErrNoRows {
		return variant.Null(), false, nil
	}
	if err != nil {
		return variant.Null(), false, fmt.Errorf("load node %d: %w: %w", id, err, apperrors.TransientIO)
	}

	switch variant.Kind(kind) {
	case variant.KindNull:
		return variant.Null(), true, nil
	case variant.KindBool:
		return variant.FromBool(vBool.Int64 != 0), true, nil
	case variant.KindInt64:
		return variant.FromInt64(vInt64.Int64), true, nil
	case variant.KindFloat64:
		return variant.FromFloat64(vFloat64.Float64), true, nil
	case variant.KindText:
		return variant.FromText(vText.String), true, nil
	case variant.KindBytes:
		return variant.FromBytes(vBytes), true, nil
	case variant.KindKey512:
		var k digest512.Key512
		copy(k[:], vBytes)
		return variant.FromKey512(k), true, nil
	default:
		return variant.Null(), true, nil
	}
}

func (s *Store) store(id int64, v variant.Variant) error {
	var vBool, vInt64 sql.NullInt64
	var vFloat64 sql.NullFloat64
	var vText sql.NullString
	var vBytes []byte

	switch v.Kind() {
	case variant.KindBool:
		b, _ := v.Bool()
		i := int64(0)
		if b {
			i = 1
		}
		vBool = sql.NullInt64{Int64: i, Valid: true}
	case variant.KindInt64:
		iv, _ := v.Int64()
		vInt64 = sql.NullInt64{Int64: iv, Valid: true}
	case variant.KindFloat64:
		f, _ := v.Float64()
		vFloat64 = sql.NullFloat64{Float64: f, Valid: true}
	case variant.KindText:
		t, _ := v.Text()
		vText = sql.NullString{String: t, Valid: true}
	case variant.KindBytes:
		b, _ := v.Bytes()
		vBytes = b
	case variant.KindKey512:
		k, _ := v.Key512()
		vBytes = append([]byte(nil), k[:]...)
	}

	_, err := s.db.Exec(`UPDATE variable SET kind = ?, v_bool = ?, v_int64 = ?, v_float64 = ?, v_text = ?, v_bytes = ? WHERE id = ?`,
		int(v.Kind()), vBool, vInt64, vFloat64, vText, vBytes, id)
	if err != nil {
		return fmt.Errorf("store node %d: %w: %w", id, err, apperrors.TransientIO)
	}
	return nil
}
