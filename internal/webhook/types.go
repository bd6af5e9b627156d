package webhook

import (
	"context"

	"github.com/mattjoyce/smoked-tofu/internal/dispatch"
	"github.com/mattjoyce/smoked-tofu/internal/push"
)

// Processor runs the check-run lifecycle for every commit of a push.
type Processor interface {
	Process(ctx context.Context, deliveryID string, ev *push.Event) *dispatch.BatchResult
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Path is the URL path push deliveries are posted to (e.g. "/webhook").
	Path string

	// Secret is the shared HMAC key configured on the GitHub webhook.
	Secret string

	// SignatureHeader carries "sha256=<hex>".
	SignatureHeader string

	// MaxBodySize is the maximum accepted body in bytes (default: 1MB).
	MaxBodySize int64
}

// MessageResponse is the JSON response for a processed delivery.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultPath            = "/webhook"
	DefaultSignatureHeader = "X-Hub-Signature-256"
	DefaultMaxBodySize     = 1048576 // 1 MB
	DeliveryHeader         = "X-GitHub-Delivery"

	SuccessMessage = "Webhook processed successfully"
)
