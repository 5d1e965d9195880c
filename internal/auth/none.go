package auth

import "context"

// NoneMechanism is used when the server's AUTH-LIST offer is empty, or the
// caller explicitly requested no authentication and the server allows it.
type NoneMechanism struct{}

func (NoneMechanism) Name() string { return "none" }

func (NoneMechanism) Init(ctx context.Context) ([]byte, error) { return nil, nil }

func (NoneMechanism) Step(ctx context.Context, challenge []byte) ([]byte, bool, error) {
	return nil, true, nil
}
