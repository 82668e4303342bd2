// Package client provides a Go SDK for the Aviary task API.
//
// Tasks are submitted to named agents and executed asynchronously; the
// client exposes both low-level primitives (create, poll status, fetch
// result) and a blocking RunTask helper that drives the full lifecycle.
// A WebSocket client streams task events in real time.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Submit and wait for the result.
//	result, err := c.RunTask(ctx, client.TaskRequest{
//	    Name:  "CROW",
//	    Query: "How many moons does Jupiter have?",
//	})
//
// # Manual Polling
//
//	handle, err := c.CreateTask(ctx, req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	status, err := c.GetStatus(ctx, handle)
//	// ... later, once terminal:
//	result, err := c.GetResult(ctx, handle)
//
// # Errors
//
// Failures are reported as typed errors that callers match with errors.As:
// AuthError, ValidationError, NotReadyError, TaskFailedError, TimeoutError,
// and TransportError.
//
// # WebSocket Events
//
//	err := c.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
package client
