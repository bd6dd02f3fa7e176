package main

import (
	"context"
	"testing"
)

func TestStoreIncrementMosqueCounterRejectsUnknownCounter(t *testing.T) {
	app := &App{}

	// the guard runs before any query, so no database is needed
	if _, err := app.storeIncrementMosqueCounter(context.Background(), "m1", "created_at"); err == nil {
		t.Fatal("expected an error for an unknown counter")
	}
	if _, err := app.storeIncrementMosqueCounter(context.Background(), "m1", "views; DROP TABLE approved_mosques"); err == nil {
		t.Fatal("expected an error for an injected counter name")
	}
}
