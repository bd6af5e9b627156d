// Package webhook serves the signed push endpoint.
//
// Every request body is read once into memory, bounded by the configured
// max body size, and authenticated with HMAC-SHA256 over the raw bytes before
// anything is parsed. The same bytes are then decoded as a push payload and
// handed to a Processor, which runs the per-commit check-run lifecycle.
//
// # Responses
//
//   - 200: {"message": "Webhook processed successfully"} once the body is authentic and parsed
//   - 400: signature header not valid text, missing "sha256=" prefix, or body not JSON
//   - 401: signature header absent or digest mismatch
//   - 413: body exceeds max_body_size
//   - 422: JSON missing required fields
//   - 500: body unreadable or secret not configured
//
// Error bodies are {"error": "..."}. Per-commit failures never change the
// response; they are reported through check runs, logs and delivery history.
//
// # Example
//
//	srv := webhook.New(webhook.Config{
//		Listen:          "0.0.0.0:3000",
//		Path:            "/webhook",
//		Secret:          os.Getenv("WEBHOOK_SECRET"),
//		SignatureHeader: webhook.DefaultSignatureHeader,
//	}, dispatcher, logger)
//	if err := srv.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
