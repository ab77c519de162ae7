package metadata

import (
	"context"

	"github.com/nxslink/beatlink/types"
)

// Provider is one link in the metadata chain of responsibility: a PDB
// file parser, an HTTP proxy to a companion app, or any other external
// source of track metadata. Returning (nil, nil) means "I don't have
// this track," letting the chain fall through to the next provider
// (and ultimately to the dbserver Client); a non-nil error aborts the
// chain and is reported to the caller.
type Provider interface {
	GetTrackMetadata(ctx context.Context, ref types.DataReference) (*TrackMetadata, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, ref types.DataReference) (*TrackMetadata, error)

// GetTrackMetadata implements Provider.
func (f ProviderFunc) GetTrackMetadata(ctx context.Context, ref types.DataReference) (*TrackMetadata, error) {
	return f(ctx, ref)
}

// CompositeProvider tries each of its providers in order, stopping at
// the first one that returns non-nil metadata.
type CompositeProvider struct {
	providers []Provider
}

// NewCompositeProvider builds a CompositeProvider consulting providers
// in the given order.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{providers: providers}
}

// GetTrackMetadata implements Provider by trying each link in the
// chain in order.
func (c *CompositeProvider) GetTrackMetadata(ctx context.Context, ref types.DataReference) (*TrackMetadata, error) {
	for _, p := range c.providers {
		md, err := p.GetTrackMetadata(ctx, ref)
		if err != nil {
			return nil, err
		}
		if md != nil {
			return md, nil
		}
	}
	return nil, nil
}
