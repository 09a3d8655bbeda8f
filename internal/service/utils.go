package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

func marshalReasonMetadata(reason string) ([]byte, error) {
	return json.Marshal(map[string]string{
		"reason": reason,
	})
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
