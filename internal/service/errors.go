package service

import (
	"errors"

	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/repository"
)

// Service errors share the lifecycle taxonomy so callers can match with errors.Is.
var (
	ErrNotFound          = lifecycle.ErrNotFound
	ErrForbidden         = lifecycle.ErrUnauthorized
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrConflict          = lifecycle.ErrConflict
	ErrValidation        = lifecycle.ErrValidation
)

func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	}
	return err
}
