package collectionapi

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// collectionAPISchema defines the configuration schema.
var collectionAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the collection-api component.
type Config struct {
	// IngestSubject is the stream subject batch extraction requests publish to.
	IngestSubject string `json:"ingest_subject" schema:"type:string,description:Subject for document ingestion requests,category:basic,default:docs.ingest.request"`

	// FetchTimeout bounds a single page fetch (duration string).
	FetchTimeout string `json:"fetch_timeout" schema:"type:string,description:Timeout for fetching web pages,category:basic,default:30s"`

	// UserAgent identifies agora to fetched sites.
	UserAgent string `json:"user_agent" schema:"type:string,description:User agent for web fetching,category:advanced,default:agora-collection-api/1.0"`

	// MaxContentSize caps fetched page size in bytes.
	MaxContentSize int64 `json:"max_content_size" schema:"type:integer,description:Maximum fetched content size in bytes,category:advanced,default:10485760"`

	// ProgressMaxAgeHours is how long finished extractions stay visible.
	ProgressMaxAgeHours int `json:"progress_max_age_hours" schema:"type:integer,description:Retention for finished extraction progress in hours,category:advanced,default:24"`

	// ProposalTTLHours is the voting window for proposals created by
	// extraction flows, in hours.
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
		IngestSubject:       "docs.ingest.request",
		FetchTimeout:        "30s",
		UserAgent:           "agora-collection-api/1.0",
		MaxContentSize:      10 * 1024 * 1024,
		ProgressMaxAgeHours: 24,
		ProposalTTLHours:    168,
		MinLocalBalance:     10_000_000,
		MinArchiveBalance:   50_000_000,
		CostPerDocument:     10_000_000,
		ReserveFloor:        5_000_000,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "ingest.out",
					Type:        "jetstream",
					Subject:     "docs.ingest.request",
					StreamName:  "DOCS",
					Required:    false,
					Description: "Batch document ingestion requests",
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

// ProgressMaxAge returns the progress retention as a duration.
func (c *Config) ProgressMaxAge() time.Duration {
	return time.Duration(c.ProgressMaxAgeHours) * time.Hour
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.IngestSubject == "" {
		return fmt.Errorf("ingest_subject is required")
	}
	if c.MaxContentSize <= 0 {
		return fmt.Errorf("max_content_size must be positive")
	}
	if c.ProposalTTLHours <= 0 {
		return fmt.Errorf("proposal_ttl_hours must be positive")
	}
	return nil
}
