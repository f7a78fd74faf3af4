package docingester

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the doc-ingester component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "doc-ingester",
		Factory:     NewComponent,
		Schema:      docIngesterSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "agora",
		Description: "Consumes queued ingestion requests and raises embed proposals",
		Version:     "0.1.0",
	})
}
