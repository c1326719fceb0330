package service

import (
	"errors"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/secrets"
)

var (
	// ErrValidation marks bad input or an unsupported institution. Nothing
	// is written when it is returned.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrConnection wraps adapter and network failures during a sync.
	ErrConnection = bank.ErrConnection
	// ErrDecryption wraps credential unsealing failures.
	ErrDecryption        = secrets.ErrDecryption
	ErrAlreadyReconciled = repository.ErrAlreadyReconciled
	ErrSaleNotPending    = repository.ErrSaleNotPending
)
