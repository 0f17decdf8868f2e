package dto

import (
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
)

func parseID(s, field string) (id.ID, error) {
	parsed, err := id.Parse(s)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid "+field).WithDetail(field, s)
	}
	return parsed, nil
}

func parseDate(s, field string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperror.NewValidation(field+" must be YYYY-MM-DD").WithDetail(field, s)
	}
	return parsed, nil
}
