package db

import "context"

// Transactor runs fn in a transaction carried by the context passed to it.
// Repositories of the matching backend pick the transaction up from there;
// fn returning an error rolls everything back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
