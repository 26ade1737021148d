package scraper

import (
	"context"
	"io"

	"flowvault/pkg/models"
)

// FlowSource is the acquisition boundary: where flow listings and their
// archives come from. The pipeline treats it as untrusted and slow; every
// call goes through retry and classification.
type FlowSource interface {
	// ListFlows returns the flows published for an app, in source order.
	ListFlows(ctx context.Context, app models.App) ([]models.Flow, error)

	// FetchArchive opens the flow's archive for streaming. The caller owns
	// the returned reader and must close it.
	FetchArchive(ctx context.Context, flow models.Flow) (io.ReadCloser, error)
}
