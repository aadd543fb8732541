// Package sync reconciles locally pending form records with the remote system.
//
// Overview
//
// A sync pass discovers the records the store holds as pending, submits each
// one to the remote endpoint and writes the outcome back through the store:
//
//	Store (status = pending)
//	     │ GetPending
//	     ▼
//	  Engine ── for each record, in order ──┐
//	     │  token      auth.Provider        │
//	     │  shape      ShapeForm            │
//	     │  signatures ExtractSignatures    │
//	     │  target     docpath.Derive       │
//	     │  document   render.Renderer      │
//	     │  submit     remote.Submitter     │
//	     ▼                                  │
//	Store.UpdateStatus(synced | error) ◄────┘
//
// Guarantees
//
// At most one pass runs per Session. A SyncNow call that finds the session busy,
// or the connectivity source offline, returns a skipped Result without touching
// any record. Records are attempted sequentially; a failure is recorded on that
// record only (status error, attempt counter incremented) and the pass moves on.
// Only failures of the pass itself, such as the pending query failing, abort it.
// The session is released on every exit path.
//
// Delivery is at-least-once: a record whose remote submission succeeded but
// whose status write failed stays pending and is submitted again next pass.
//
// Usage
//
//	engine := sync.New(store, sync.Options{
//	    Submitter: remote.NewClient(endpoint, nil),
//	    Tokens:    tokens,
//	    Renderer:  render.Bundle{},
//	    Indicator: dashboard,
//	})
//	res, err := engine.SyncNow(ctx)
package sync
