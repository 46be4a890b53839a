// Package store provides optional durable archiving of delivered messages
// and acknowledgment records. The relay itself stays in-memory; archiving
// is best-effort observability and never gates the poll path.
package store

import (
	"context"

	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

// Archiver persists drained message batches and ack records.
type Archiver interface {
	ArchiveMessages(ctx context.Context, msgs []relay.Message) error
	ArchiveAck(ctx context.Context, rec relay.AckRecord) error
}

// NopArchiver discards everything. Used when archiving is disabled.
type NopArchiver struct{}

func (NopArchiver) ArchiveMessages(ctx context.Context, msgs []relay.Message) error { return nil }
func (NopArchiver) ArchiveAck(ctx context.Context, rec relay.AckRecord) error       { return nil }
