package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/graphdoc/internal/domain"
	"github.com/totegamma/graphdoc/internal/infra/database/models"
)

var tracer = otel.Tracer("repository")

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Get loads one record and hydrates its edges up to depth levels.
func (r *RecordRepository) Get(ctx context.Context, typ, id string, depth int) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Repository.Record.Get")
	defer span.End()
	span.SetAttributes(attribute.String("type", typ), attribute.String("id", id))

	var record models.Record
	err := r.db.WithContext(ctx).
		Where("type = ? AND id = ?", typ, id).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFoundError{Resource: typ}
		}
		span.RecordError(err)
		return nil, pkgerrors.Wrap(err, "RecordRepository.Get")
	}

	docs, err := r.hydrate(ctx, []models.Record{record}, depth)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return docs[0], nil
}

// List loads a page of records ordered by id.
func (r *RecordRepository) List(ctx context.Context, typ string, page domain.Page, depth int) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Repository.Record.List")
	defer span.End()
	span.SetAttributes(attribute.String("type", typ), attribute.Int("limit", page.Limit))

	query := r.db.WithContext(ctx).Where("type = ?", typ)
	switch {
	case page.After != "":
		query = query.Where("id > ?", page.After).Order("id asc")
	case page.Before != "":
		query = query.Where("id < ?", page.Before).Order("id desc")
	default:
		query = query.Order("id asc")
	}
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}

	var records []models.Record
	if err := query.Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, pkgerrors.Wrap(err, "RecordRepository.List")
	}

	if page.Before != "" {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}

	return r.hydrate(ctx, records, depth)
}

// Upsert stores the record and replaces the edges of every linked field.
func (r *RecordRepository) Upsert(ctx context.Context, record domain.Record, links []domain.Link) error {
	ctx, span := tracer.Start(ctx, "Repository.Record.Upsert")
	defer span.End()

	value, err := json.Marshal(record.Value)
	if err != nil {
		return pkgerrors.Wrap(err, "RecordRepository.Upsert: marshal value")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type"}, {Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{"value": string(value), "m_date": time.Now()}),
		}).Create(&models.Record{
			Type:  record.Type,
			ID:    record.ID,
			Value: string(value),
		}).Error
		if err != nil {
			span.RecordError(err)
			return err
		}

		for _, link := range links {
			if err := replaceEdges(tx, record.Type, record.ID, link); err != nil {
				span.RecordError(err)
				return err
			}
		}
		return nil
	})
}

// Link replaces the edges of one field.
func (r *RecordRepository) Link(ctx context.Context, typ, id string, link domain.Link) error {
	ctx, span := tracer.Start(ctx, "Repository.Record.Link")
	defer span.End()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Record{}).Where("type = ? AND id = ?", typ, id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.NotFoundError{Resource: typ}
		}
		return replaceEdges(tx, typ, id, link)
	})
}

func replaceEdges(tx *gorm.DB, typ, id string, link domain.Link) error {
	if link.Field == "" || link.Type == "" {
		return domain.InvalidInputError{Reason: "link needs field and type"}
	}
	if !link.Many && len(link.IDs) > 1 {
		return domain.InvalidInputError{Reason: "to-one link " + link.Field + " has several ids"}
	}

	err := tx.Where("source_type = ? AND source_id = ? AND field = ?", typ, id, link.Field).
		Delete(&models.Edge{}).Error
	if err != nil {
		return err
	}
	if len(link.IDs) == 0 {
		return nil
	}

	edges := make([]models.Edge, len(link.IDs))
	for i, target := range link.IDs {
		edges[i] = models.Edge{
			SourceType: typ,
			SourceID:   id,
			Field:      link.Field,
			Position:   i,
			TargetType: link.Type,
			TargetID:   target,
			Many:       link.Many,
		}
	}
	return tx.Create(&edges).Error
}

// Delete removes the record with its outgoing and incoming edges.
func (r *RecordRepository) Delete(ctx context.Context, typ, id string) error {
	ctx, span := tracer.Start(ctx, "Repository.Record.Delete")
	defer span.End()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("type = ? AND id = ?", typ, id).Delete(&models.Record{})
		if result.Error != nil {
			span.RecordError(result.Error)
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NotFoundError{Resource: typ}
		}

		err := tx.Where("(source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?)", typ, id, typ, id).
			Delete(&models.Edge{}).Error
		if err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	})
}

// hydrate resolves edges level by level, one query for edges and one for
// targets per level.
func (r *RecordRepository) hydrate(ctx context.Context, records []models.Record, depth int) ([]map[string]any, error) {
	roots, err := newNodes(records, nil)
	if err != nil {
		return nil, err
	}

	level := roots
	for d := 0; d < depth && len(level) > 0; d++ {
		keys := make([][]any, 0, len(level))
		for _, n := range level {
			keys = append(keys, []any{n.typ, n.id})
		}

		var edges []models.Edge
		err := r.db.WithContext(ctx).
			Where("(source_type, source_id) IN ?", keys).
			Order("source_type, source_id, field, position").
			Find(&edges).Error
		if err != nil {
			return nil, pkgerrors.Wrap(err, "hydrate: load edges")
		}
		if len(edges) == 0 {
			break
		}

		targetKeys := make([][]any, 0, len(edges))
		seen := map[string]bool{}
		for _, e := range edges {
			k := recordKey(e.TargetType, e.TargetID)
			if seen[k] {
				continue
			}
			seen[k] = true
			targetKeys = append(targetKeys, []any{e.TargetType, e.TargetID})
		}

		var targets []models.Record
		err = r.db.WithContext(ctx).
			Where("(type, id) IN ?", targetKeys).
			Find(&targets).Error
		if err != nil {
			return nil, pkgerrors.Wrap(err, "hydrate: load targets")
		}

		level, err = attach(level, edges, targets)
		if err != nil {
			return nil, err
		}
	}

	docs := make([]map[string]any, len(roots))
	for i, n := range roots {
		docs[i] = n.value
	}
	return docs, nil
}
