package domain

import (
	"github.com/pkg/errors"
)

var (
	ErrGuestRecordNotFound = errors.New("guest trip record not found")
)
