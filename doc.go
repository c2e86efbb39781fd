// Package groundlink provides a client for Yamcs mission-control servers,
// combining a browsable telemetry dictionary with realtime parameter
// subscriptions.
//
// # Architecture
//
// GroundLink has two independent halves wired together by the Client:
//
// Catalog (pull side):
//   - Fetches the mission database (space systems and parameters) over the
//     Yamcs HTTP API, following pagination until exhausted
//   - Builds an immutable tree of folders and telemetry points, expanding
//     aggregate parameters into folders of member leaves
//   - Builds lazily on first lookup and memoizes the result; concurrent
//     lookups share a single in-flight build
//
// Realtime (push side):
//   - Maintains a websocket connection to the Yamcs realtime endpoint
//   - Subscribes to parameters on behalf of callers and dispatches decoded
//     samples to their callbacks
//   - Reconnects on failure with a fixed backoff schedule, replaying every
//     active subscription and any commands queued while disconnected
//
// Both halves address telemetry points by key, a path-safe encoding of the
// Yamcs fully qualified parameter name (see package identifier).
//
// # Usage
//
//	cfg := config.Default()
//	cfg.Server.URL = "http://yamcs.example.com:8090"
//	cfg.Server.Instance = "simulator"
//
//	client, err := groundlink.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Stop(5 * time.Second)
//
//	root, err := client.Node(ctx, client.RootKey())
//	unsub, err := client.Subscribe("~Sat~Temp", func(s realtime.Sample) {
//		fmt.Println(s.Key, s.Value)
//	})
package groundlink
