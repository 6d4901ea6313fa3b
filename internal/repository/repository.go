// Package repository implements persistence for the content and user entities.
// Reads go to the read replica when one is configured, writes to the primary,
// and both join the transaction carried in the context.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"facefeed/internal/middleware"
	"facefeed/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is one page of an offset/limit listing plus the total match count.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

// NormalizePage clamps limit to [1, MaxLimit] (DefaultLimit when unset) and
// offset to >= 0.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// wrapError converts driver errors to AppErrors. Record-not-found becomes
// NOT_FOUND, unique violations CONFLICT, anything else INTERNAL with the
// original error kept for errors.Is/As.
func wrapError(ctx context.Context, op, resource string, id any, err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	if isUniqueViolation(err) {
		return &models.AppError{
			Code:    models.CodeConflict,
			Message: fmt.Sprintf("%s already exists", resource),
			Err:     err,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewUnavailableError("Request cancelled", err)
	}

	middleware.Logger.ErrorContext(ctx, "repository operation failed",
		slog.String("op", op),
		slog.String("resource", resource),
		slog.Any("id", id),
		slog.String("error", err.Error()),
	)
	return models.NewInternalError(fmt.Errorf("%s: %w", op, err))
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching q as a lowercased substring.
// Use with `LIKE ? ESCAPE '\'`.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}

// counterExpr is `column + delta`, floored at zero.
func counterExpr(column string, delta int64) any {
	return gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", column), delta, delta)
}

// adjustCounters applies deltas atomically to one row and reports NOT_FOUND
// when the row does not exist.
func adjustCounters(ctx context.Context, db *gorm.DB, model any, resource, id string, deltas map[string]int64) error {
	updates := make(map[string]any, len(deltas))
	for column, delta := range deltas {
		if delta != 0 {
			updates[column] = counterExpr(column, delta)
		}
	}
	if len(updates) == 0 {
		return nil
	}
	res := db.Model(model).Where("id = ?", id).UpdateColumns(updates)
	if res.Error != nil {
		return wrapError(ctx, "adjust counters", resource, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(resource, id)
	}
	return nil
}

type groupCount struct {
	Key   string `gorm:"column:group_key"`
	Count int64  `gorm:"column:group_count"`
}

func countsToMap(rows []groupCount) map[string]int64 {
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out
}
