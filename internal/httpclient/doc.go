// Package httpclient builds the HTTP requests and clients volley probes with.
//
// The package has two halves: a connection-tuned client factory and a
// request builder that renders attempt requests from a validated template.
//
// # Clients
//
// [NewClient] returns a client whose transport is sized for sustained
// probing of one host, with optional keep-alive and TLS verification
// toggles:
//
//	client := httpclient.NewClient(httpclient.ClientOptions{
//		Timeout:        10 * time.Second,
//		ConnectTimeout: 2 * time.Second,
//	})
//
// # Request Building
//
// [NewRequestBuilder] validates the method, headers, and body source once.
// Each attempt then renders a request, expanding {{name}} placeholders
// against the values captured so far:
//
//	builder, err := httpclient.NewRequestBuilder(httpclient.BuilderOptions{
//		Method: "POST",
//		Target: "https://api.example.com/users/{{user_id}}",
//		Body:   `{"name": "{{name}}"}`,
//	})
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, values)
//
// Bodies come from inline text or a file; either way every attempt gets a
// fresh reader, so retried requests never see a half-consumed stream.
package httpclient
