package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

// ConsentListQuery filters the school dashboard listing. Status accepts the
// derived "expired" value, which is translated into a pending + lapsed-link
// query since expiry is never written back to the record.
type ConsentListQuery struct {
	SchoolID string
	Status   schema.ConsentStatus
	Page     int64
	PageSize int64
}

type School interface {
	ListSchoolConsents(query ConsentListQuery) ([]schema.ConsentRecord, int64, error)
	ListAllSchoolConsents(schoolID string, status schema.ConsentStatus) ([]schema.ConsentRecord, error)
	CountSchoolConsentsByStatus(schoolID string) (map[schema.ConsentStatus]int64, error)
}

// ListSchoolConsents returns one dashboard page plus the total match count.
func (m *mongoDB) ListSchoolConsents(query ConsentListQuery) ([]schema.ConsentRecord, int64, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if query.PageSize <= 0 || query.PageSize > 100 {
		query.PageSize = 50
	}
	if query.Page < 1 {
		query.Page = 1
	}

	filter := consentStatusFilter(query.SchoolID, query.Status, time.Now().UTC())

	total, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip((query.Page - 1) * query.PageSize).
		SetLimit(query.PageSize)

	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	var records []schema.ConsentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListAllSchoolConsents returns every matching record without paging. The
// compliance export must never truncate, so this bypasses the dashboard page
// clamp entirely.
func (m *mongoDB) ListAllSchoolConsents(schoolID string, status schema.ConsentStatus) ([]schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	filter := consentStatusFilter(schoolID, status, time.Now().UTC())

	cursor, err := c.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}

	var records []schema.ConsentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// CountSchoolConsentsByStatus rolls the school's records up per effective
// status, splitting lapsed pending links out as expired.
func (m *mongoDB) CountSchoolConsentsByStatus(schoolID string) (map[schema.ConsentStatus]int64, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	counts := map[schema.ConsentStatus]int64{}

	for _, status := range []schema.ConsentStatus{
		schema.ConsentStatusPending,
		schema.ConsentStatusApproved,
		schema.ConsentStatusDenied,
		schema.ConsentStatusRevoked,
		schema.ConsentStatusExpired,
	} {
		count, err := c.CountDocuments(ctx, consentStatusFilter(schoolID, status, now))
		if err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, nil
}

// consentStatusFilter maps an effective status onto a stored-field query.
// "pending" excludes lapsed links and "expired" selects exactly those, so the
// two partitions never overlap.
func consentStatusFilter(schoolID string, status schema.ConsentStatus, now time.Time) bson.M {
	filter := bson.M{"school_id": schoolID}

	switch status {
	case schema.ConsentStatusPending:
		filter["status"] = schema.ConsentStatusPending
		filter["link_expires_at"] = bson.M{"$gt": now}
	case schema.ConsentStatusExpired:
		filter["status"] = schema.ConsentStatusPending
		filter["link_expires_at"] = bson.M{"$lte": now}
	case "":
		// no status filter
	default:
		filter["status"] = status
	}

	return filter
}
