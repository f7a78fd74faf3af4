package collectionapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the collection-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "collection-api",
		Factory:     NewComponent,
		Schema:      collectionAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "agora",
		Description: "HTTP endpoints for collection management, ingestion, and credits",
		Version:     "0.1.0",
	})
}
