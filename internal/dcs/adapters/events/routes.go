// Package events wires the registry's consumed wire events
// (FileInternallyRegistered, FileDeletionRequested) to eventbus.Route
// handlers. The registry's own outbound events (NonStagedFileRequested,
// FileDownloadServed, FileRegisteredForDownload, FileDeleted) are
// published directly by the core through the shared eventbus.Publisher.
package events

import (
	"context"

	"github.com/marmos91/dittofs/internal/dcs"
	"github.com/marmos91/dittofs/internal/eventbus"
)

// FileInternallyRegisteredTopic is the topic IFRS publishes
// FileInternallyRegistered to.
const FileInternallyRegisteredTopic = "file-internally-registered"

// FileDeletionRequestTopic is the topic a deletion request arrives on.
const FileDeletionRequestTopic = "file-deletion-requested"

// Routes builds the eventbus.Route table for the two topics the
// registry consumes. Each consumer only ever carries routes for its own
// topic (eventbus.NewConsumer enforces this), so callers build one
// *Consumer per topic from the matching subslice.
func Routes(registry *dcs.RegistryController) []eventbus.Route {
	return []eventbus.Route{
		{
			Topic: FileInternallyRegisteredTopic,
			Type:  "file_internally_registered",
			Handler: func(ctx context.Context, event eventbus.Event) error {
				return registry.HandleFileInternallyRegistered(ctx, event.Payload)
			},
		},
		{
			Topic: FileDeletionRequestTopic,
			Type:  "file_deletion_requested",
			Handler: func(ctx context.Context, event eventbus.Event) error {
				return registry.HandleFileDeletionRequested(ctx, event.Payload)
			},
		},
	}
}
