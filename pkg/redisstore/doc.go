// Package redisstore provides a Redis-backed storage for the queue package.
//
// Messages are stored as JSON blobs keyed by id; the pending and processing
// sets are sorted sets scored by start time and claim time. The claim path
// runs a Lua script so that exactly one worker obtains any given message.
//
// Usage:
//
//	client, err := redisstore.Connect(ctx, redisstore.Config{ConnectionURL: url})
//	if err != nil {
//	    return err
//	}
//	store := redisstore.NewStore(client, "myapp")
//	worker, err := queue.NewWorker(store, registry)
package redisstore
