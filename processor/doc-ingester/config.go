package docingester

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// docIngesterSchema defines the configuration schema.
var docIngesterSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the doc-ingester component.
type Config struct {
	// StreamName is the stream carrying ingestion requests.
	StreamName string `json:"stream_name" schema:"type:string,description:Stream carrying document ingestion requests,category:basic,default:DOCS"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:doc-ingester"`

	// FetchTimeout bounds a single page fetch (duration string).
	FetchTimeout string `json:"fetch_timeout" schema:"type:string,description:Timeout for fetching web pages,category:basic,default:30s"`

	// UserAgent identifies agora to fetched sites.
	UserAgent string `json:"user_agent" schema:"type:string,description:User agent for web fetching,category:advanced,default:agora-doc-ingester/1.0"`

	// MaxContentSize caps fetched page size in bytes.
	MaxContentSize int64 `json:"max_content_size" schema:"type:integer,description:Maximum fetched content size in bytes,category:advanced,default:10485760"`

	// ProposalTTLHours is the voting window for embed proposals raised by
	// ingestion, in hours.
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
		StreamName:        "DOCS",
		ConsumerName:      "doc-ingester",
		FetchTimeout:      "30s",
		UserAgent:         "agora-doc-ingester/1.0",
		MaxContentSize:    10 * 1024 * 1024,
		ProposalTTLHours:  168,
		MinLocalBalance:   10_000_000,
		MinArchiveBalance: 50_000_000,
		CostPerDocument:   10_000_000,
		ReserveFloor:      5_000_000,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "ingest.in",
					Type:        "jetstream",
					Subject:     "docs.ingest.request",
					StreamName:  "DOCS",
					Required:    true,
					Description: "Document ingestion requests",
				},
			},
		},
	}
}

// GetFetchTimeout parses the fetch timeout, falling back to 30s.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ProposalTTL returns the proposal voting window as a duration.
func (c *Config) ProposalTTL() time.Duration {
	return time.Duration(c.ProposalTTLHours) * time.Hour
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.MaxContentSize <= 0 {
		return fmt.Errorf("max_content_size must be positive")
	}
	if c.ProposalTTLHours <= 0 {
		return fmt.Errorf("proposal_ttl_hours must be positive")
	}
	return nil
}
