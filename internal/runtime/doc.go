// Package runtime wires storage, config, and the claim protocol into a
// single claimd instance. It exposes Open/Close, a basic health check, and
// accessors for the components the CLI drives.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	item, _ := rt.Coordinator().Claim(ctx, "w1", coordinator.Filter{}, cfg.DefaultLeaseMs)
package runtime
