package store

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

type Audit interface {
	AppendAuditEvent(event schema.AuditEvent) error
	ListAuditEvents(studentID string, limit int64) ([]schema.AuditEvent, error)
}

// AppendAuditEvent inserts one immutable event row. There is no update or
// delete path for this collection anywhere in the codebase.
func (m *mongoDB) AppendAuditEvent(event schema.AuditEvent) error {
	c := m.client.Database(m.database).Collection(schema.AuditEventCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := c.InsertOne(ctx, &event)
	return err
}

// ListAuditEvents returns the trail for a student, newest first, with
// identifying fields masked for dashboard consumption. The stored rows keep
// full fidelity; masking happens on the copy returned here.
func (m *mongoDB) ListAuditEvents(studentID string, limit int64) ([]schema.AuditEvent, error) {
	c := m.client.Database(m.database).Collection(schema.AuditEventCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 500
	}

	opts := options.Find().SetSort(bson.M{"ts": -1}).SetLimit(limit)
	cursor, err := c.Find(ctx, bson.M{"student_id": studentID}, opts)
	if err != nil {
		return nil, err
	}

	var events []schema.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}

	for i := range events {
		maskAuditEvent(&events[i])
	}

	return events, nil
}

// maskAuditEvent strips fine-grained identifiers before an event leaves the
// store: exact IPs collapse to network granularity and raw user agents are
// dropped entirely.
func maskAuditEvent(event *schema.AuditEvent) {
	event.IP = maskIP(event.IP)
	event.UserAgent = ""
}

// maskIP reduces an address to /24 granularity for IPv4 and /48 for IPv6.
// Unparseable input is dropped rather than passed through.
func maskIP(raw string) string {
	if raw == "" {
		return ""
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}

	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
