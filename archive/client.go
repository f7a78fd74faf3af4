// Package archive is the NATS request/reply client for the document archive
// service: collection storage, document storage, embeddings, and the
// archive-side credit account.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/metrics"
)

// Config holds the archive client's subjects and timeout.
type Config struct {
	CollectionCreateSubject string        `json:"collection_create_subject"`
	CollectionDeleteSubject string        `json:"collection_delete_subject"`
	DocumentAddSubject      string        `json:"document_add_subject"`
	DocumentEmbedSubject    string        `json:"document_embed_subject"`
	DocumentDeleteSubject   string        `json:"document_delete_subject"`
	CreditsBalanceSubject   string        `json:"credits_balance_subject"`
	CreditsDepositSubject   string        `json:"credits_deposit_subject"`
	RequestTimeout          time.Duration `json:"request_timeout"`
}

// DefaultConfig returns the standard archive subjects.
func DefaultConfig() Config {
	return Config{
		CollectionCreateSubject: "archive.collection.create",
		CollectionDeleteSubject: "archive.collection.delete",
		DocumentAddSubject:      "archive.document.add",
		DocumentEmbedSubject:    "archive.document.embed",
		DocumentDeleteSubject:   "archive.document.delete",
		CreditsBalanceSubject:   "archive.credits.balance",
		CreditsDepositSubject:   "archive.credits.deposit",
		RequestTimeout:          30 * time.Second,
	}
}

// Client implements governance.Archive over NATS request/reply.
type Client struct {
	conn   *nats.Conn
	config Config
	logger *slog.Logger
}

// NewClient creates an archive client.
func NewClient(conn *nats.Conn, config Config, logger *slog.Logger) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection required")
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{conn: conn, config: config, logger: logger}, nil
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

type createCollectionResponse struct {
	CollectionID string `json:"collection_id"`
	Error        string `json:"error,omitempty"`
}

type collectionRequest struct {
	CollectionID string `json:"collection_id"`
}

type addDocumentRequest struct {
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
}

type addDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error,omitempty"`
}

type documentRequest struct {
	CollectionID string `json:"collection_id"`
	DocumentID   string `json:"document_id"`
}

type embedDocumentResponse struct {
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	Error string `json:"error,omitempty"`
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
	Error   string `json:"error,omitempty"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// CreateCollection implements governance.Archive.
func (c *Client) CreateCollection(ctx context.Context, name string) (string, error) {
	var resp createCollectionResponse
	err := c.request(ctx, "collection_create", c.config.CollectionCreateSubject,
		createCollectionRequest{Name: name}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: create collection: %s", governance.ErrExternalService, resp.Error)
	}
	return resp.CollectionID, nil
}

// DeleteCollection implements governance.Archive.
func (c *Client) DeleteCollection(ctx context.Context, archiveCollectionID string) error {
	var resp statusResponse
	err := c.request(ctx, "collection_delete", c.config.CollectionDeleteSubject,
		collectionRequest{CollectionID: archiveCollectionID}, &resp)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: delete collection: %s", governance.ErrExternalService, resp.Error)
	}
	return nil
}

// AddDocument implements governance.Archive.
func (c *Client) AddDocument(ctx context.Context, archiveCollectionID, title, content string) (string, error) {
	var resp addDocumentResponse
	err := c.request(ctx, "document_add", c.config.DocumentAddSubject,
		addDocumentRequest{CollectionID: archiveCollectionID, Title: title, Content: content}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: add document: %s", governance.ErrExternalService, resp.Error)
	}
	return resp.DocumentID, nil
}

// EmbedDocument implements governance.Archive.
func (c *Client) EmbedDocument(ctx context.Context, archiveCollectionID, documentID string) (int, error) {
	var resp embedDocumentResponse
	err := c.request(ctx, "document_embed", c.config.DocumentEmbedSubject,
		documentRequest{CollectionID: archiveCollectionID, DocumentID: documentID}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: embed document %s: %s", governance.ErrExternalService, documentID, resp.Error)
	}
	return resp.Chunks, nil
}

// DeleteDocument implements governance.Archive.
func (c *Client) DeleteDocument(ctx context.Context, archiveCollectionID, documentID string) error {
	var resp statusResponse
	err := c.request(ctx, "document_delete", c.config.DocumentDeleteSubject,
		documentRequest{CollectionID: archiveCollectionID, DocumentID: documentID}, &resp)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: delete document %s: %s", governance.ErrExternalService, documentID, resp.Error)
	}
	return nil
}

// Balance returns the archive-side credit balance. Used by the resource
// preflight.
func (c *Client) Balance(ctx context.Context) (uint64, error) {
	var resp balanceResponse
	err := c.request(ctx, "credits_balance", c.config.CreditsBalanceSubject, struct{}{}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: credits balance: %s", governance.ErrExternalService, resp.Error)
	}
	return resp.Balance, nil
}

// Deposit transfers credits into the archive's account.
func (c *Client) Deposit(ctx context.Context, amount uint64) error {
	var resp statusResponse
	err := c.request(ctx, "credits_deposit", c.config.CreditsDepositSubject,
		depositRequest{Amount: amount}, &resp)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: credits deposit: %s", governance.ErrExternalService, resp.Error)
	}
	return nil
}

// request performs a JSON request/reply round trip with latency recording.
func (c *Client) request(ctx context.Context, op, subject string, req, resp any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	msg, err := c.conn.RequestWithContext(reqCtx, subject, data)
	metrics.CollaboratorLatency.WithLabelValues("archive", op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: archive %s: %v", governance.ErrExternalService, op, err)
	}

	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("%w: decode archive %s response: %v", governance.ErrExternalService, op, err)
	}
	return nil
}
