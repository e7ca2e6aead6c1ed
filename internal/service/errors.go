package service

import (
	"errors"
	"fmt"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// lookupErr maps a repository read failure into the domain taxonomy
func lookupErr(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError("%s %s not found", entity, id)
	}
	return storeErr(fmt.Sprintf("failed to load %s", entity), err)
}

// storeErr wraps a record-store failure. Errors already in the taxonomy pass through.
func storeErr(message string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.NewStoreError(message, err)
}

// providerErr makes sure a provider failure carries a provider kind
func providerErr(message string, err error) error {
	switch domain.KindOf(err) {
	case domain.KindProvider, domain.KindProviderTimeout:
		return err
	}
	return domain.NewProviderError(message, err)
}
