// Package boringmetrics is a Go client for BoringMetrics. It buffers
// logs and live metric updates, delivers them in the background with
// retries and sends user identities straight through.
//
// Basic usage:
//
//	client, err := boringmetrics.New("your-token")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	client.Logs().Send(boringmetrics.LogEvent{
//	    Level:   boringmetrics.LevelInfo,
//	    Message: "user signed up",
//	})
//
//	client.Lives().Update(boringmetrics.LiveUpdate{
//	    LiveID:    "signups",
//	    Value:     1,
//	    Operation: boringmetrics.OperationIncrement,
//	})
//
// Logs and live updates never report delivery failures to the caller.
// Register a handler with WithDiagnosticHandler to observe them.
package boringmetrics
