package db

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver with custom SQL functions.
	SQLiteDriverName = "sqlite3_sticky_canvas"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("canvas_clamp", sqliteClamp, true); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "already exists") {
					return nil
				}
				return fmt.Errorf("register canvas_clamp SQL function: %w", err)
			}
			return nil
		},
	})
}

// sqliteClamp bounds v into [lo, hi]. Non-finite values collapse to lo or hi
// so a stored coordinate is always a usable anchor.
func sqliteClamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, -1):
		return lo
	case math.IsInf(v, 1):
		return hi
	}
	return math.Min(hi, math.Max(lo, v))
}
