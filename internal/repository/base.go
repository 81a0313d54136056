// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"fmt"

	"instafeed/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err is a unique constraint violation.
// TranslateError covers both drivers; a raw pgconn error can still surface
// from sessions opened without it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// wrapErr maps driver errors to AppErrors. Errors that already are AppErrors
// pass through.
func wrapErr(err error, resource string, id any) error {
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
	return models.NewInternalError(fmt.Errorf("%s %v: %w", resource, id, err))
}

// adjustCounter adds one to (delta > 0) or removes one from (delta < 0) a
// denormalized counter. Decrements stop at zero. A missing row yields
// gorm.ErrRecordNotFound so the surrounding transaction rolls back.
func adjustCounter(tx *gorm.DB, model any, id, column string, delta int) error {
	expr := gorm.Expr(column+" + ?", 1)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN " + column + " > 0 THEN " + column + " - 1 ELSE 0 END")
	}
	res := tx.Model(model).Where("id = ?", id).UpdateColumn(column, expr)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
