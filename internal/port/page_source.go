package port

import "context"

// PageSource turns raw PDF bytes into an ordered, finite list of extraction units.
type PageSource interface {
	Units(ctx context.Context, pdf []byte) ([]Unit, error)
}
