package payment

import "context"

// Gateway is the payment provider as seen by the reservation flow.
type Gateway interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Commit(ctx context.Context, token string) (*CommitResponse, error)
}
