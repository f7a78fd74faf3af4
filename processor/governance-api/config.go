package governanceapi

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// governanceAPISchema defines the configuration schema.
var governanceAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the governance-api component.
type Config struct {
	// ProposalTTLHours is the voting window for new proposals in hours.
	ProposalTTLHours int `json:"proposal_ttl_hours" schema:"type:integer,description:Voting window for new proposals in hours,category:basic,default:168"`

	// MinLocalBalance is the local credit floor below which embedding is refused.
	MinLocalBalance uint64 `json:"min_local_balance" schema:"type:integer,description:Local credit floor for embedding execution,category:advanced,default:10000000"`

	// MinArchiveBalance is the archive-side credit health floor.
	MinArchiveBalance uint64 `json:"min_archive_balance" schema:"type:integer,description:Archive credit floor for embedding execution,category:advanced,default:50000000"`

	// CostPerDocument is the estimated credit cost of embedding one document.
	CostPerDocument uint64 `json:"cost_per_document" schema:"type:integer,description:Estimated credit cost per embedded document,category:advanced,default:10000000"`

	// ReserveFloor is the local balance kept back from funding transfers.
	ReserveFloor uint64 `json:"reserve_floor" schema:"type:integer,description:Local credit balance kept back from funding transfers,category:advanced,default:5000000"`

	// Ports declares the component's NATS ports.
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ProposalTTLHours:  168,
		MinLocalBalance:   10_000_000,
		MinArchiveBalance: 50_000_000,
		CostPerDocument:   10_000_000,
		ReserveFloor:      5_000_000,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "events.out",
					Type:        "jetstream",
					Subject:     "governance.events.proposal",
					StreamName:  "GOVERNANCE",
					Required:    false,
					Description: "Proposal lifecycle events",
				},
			},
		},
	}
}

// ProposalTTL returns the voting window as a duration.
func (c *Config) ProposalTTL() time.Duration {
	return time.Duration(c.ProposalTTLHours) * time.Hour
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ProposalTTLHours <= 0 {
		return fmt.Errorf("proposal_ttl_hours must be positive")
	}
	if c.CostPerDocument == 0 {
		return fmt.Errorf("cost_per_document must be positive")
	}
	return nil
}
