// Package repository implements typed CRUD access shared by every resource.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/api/validation"
	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const notFoundMessage = "No document found with that ID"

// Repository is the typed CRUD contract every resource is served through.
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) (*T, error)
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	List(ctx context.Context, base Filter, features query.Features) ([]T, error)
	Update(ctx context.Context, id uuid.UUID, patch map[string]json.RawMessage) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Filter is a set of column = value conditions applied before query features.
type Filter map[string]interface{}

// Cascade deletes (or detaches) dependent rows before their parent goes.
type Cascade struct {
	Model   interface{}
	Column  string
	Nullify bool
	Then    []Cascade
}

// Resource describes how an entity is loaded, created and deleted.
type Resource[T any] struct {
	Name       string
	Preloads   []string
	CreateWith []string
	ReadOnly   []string
	Scope      func(*gorm.DB) *gorm.DB
	Cascades   []Cascade

	// AfterCreate runs inside the create transaction.
	AfterCreate func(ctx context.Context, tx *gorm.DB, entity *T) error
}

// GormRepository implements Repository over gorm. PT is *T and lets the
// repository reach the Base methods without reflection.
type GormRepository[T any, PT interface {
	*T
	models.Entity
}] struct {
	db       *gorm.DB
	res      Resource[T]
	fields   map[string]*schema.Field
	omit     []string
	readOnly map[string]bool
}

var _ Repository[models.Class] = (*GormRepository[models.Class, *models.Class])(nil)

var schemaCache = &sync.Map{}

func New[T any, PT interface {
	*T
	models.Entity
}](db *gorm.DB, res Resource[T]) (*GormRepository[T, PT], error) {
	sch, err := schema.Parse(new(T), schemaCache, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("parsing %s schema: %w", res.Name, err)
	}

	r := &GormRepository[T, PT]{
		db:       db,
		res:      res,
		fields:   make(map[string]*schema.Field),
		readOnly: map[string]bool{"id": true, "created_at": true, "updated_at": true},
	}

	for _, f := range sch.Fields {
		if f.DBName == "" {
			continue
		}
		name := jsonName(f)
		if name == "" {
			continue
		}
		r.fields[name] = f
	}
	for _, name := range res.ReadOnly {
		r.readOnly[name] = true
	}

	createWith := make(map[string]bool, len(res.CreateWith))
	for _, name := range res.CreateWith {
		createWith[name] = true
	}
	for _, rel := range allRelationships(sch) {
		if !createWith[rel.Name] {
			r.omit = append(r.omit, rel.Name)
		}
	}

	return r, nil
}

// MustNew panics when the model cannot be parsed; descriptors are static.
func MustNew[T any, PT interface {
	*T
	models.Entity
}](db *gorm.DB, res Resource[T]) *GormRepository[T, PT] {
	r, err := New[T, PT](db, res)
	if err != nil {
		panic(err)
	}
	return r
}

// WithTx returns a copy of r that runs on tx. Operations on the copy nest
// inside tx as savepoints.
func (r *GormRepository[T, PT]) WithTx(tx *gorm.DB) *GormRepository[T, PT] {
	c := *r
	c.db = tx
	return &c
}

// HasField reports whether name is a JSON field backed by a column.
func (r *GormRepository[T, PT]) HasField(name string) bool {
	_, ok := r.fields[name]
	return ok
}

func (r *GormRepository[T, PT]) Create(ctx context.Context, entity *T) (*T, error) {
	PT(entity).ResetBase()
	if err := validation.Struct(entity); err != nil {
		return nil, err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if len(r.omit) > 0 {
			q = q.Omit(r.omit...)
		}
		if err := q.Create(entity).Error; err != nil {
			return err
		}
		if r.res.AfterCreate != nil {
			return r.res.AfterCreate(ctx, tx, entity)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, notFoundMessage)
	}

	return r.Get(ctx, PT(entity).PrimaryKey())
}

func (r *GormRepository[T, PT]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	var entity T
	q := r.preload(r.scoped(r.db.WithContext(ctx)))
	if err := q.Where(pkEq(id)).Take(&entity).Error; err != nil {
		return nil, apperr.FromStore(err, notFoundMessage)
	}
	return &entity, nil
}

func (r *GormRepository[T, PT]) List(ctx context.Context, base Filter, features query.Features) ([]T, error) {
	q := r.scoped(r.db.WithContext(ctx).Model(new(T)))

	for col, v := range base {
		q = q.Where(clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: col}, Value: v})
	}

	for _, f := range features.Filters {
		expr, err := r.filterExpr(f)
		if err != nil {
			return nil, err
		}
		q = q.Where(expr)
	}

	for _, s := range features.Sorts {
		field, ok := r.fields[s.Field]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("Cannot sort by unknown field %q", s.Field))
		}
		q = q.Order(clause.OrderByColumn{Column: column(field.DBName), Desc: s.Desc})
	}
	// tie-break so pages never overlap
	q = q.Order(clause.OrderByColumn{Column: column("id")})

	for _, name := range features.Fields {
		if _, ok := r.fields[name]; !ok {
			return nil, apperr.Validation(fmt.Sprintf("Cannot select unknown field %q", name))
		}
	}

	items := make([]T, 0)
	err := r.preload(q).
		Offset(features.Offset()).
		Limit(features.Limit).
		Find(&items).Error
	if err != nil {
		return nil, apperr.FromStore(err, notFoundMessage)
	}
	return items, nil
}

func (r *GormRepository[T, PT]) Update(ctx context.Context, id uuid.UUID, patch map[string]json.RawMessage) (*T, error) {
	cols := make([]string, 0, len(patch))
	for key := range patch {
		field, ok := r.fields[key]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("Unknown field %q", key))
		}
		if r.readOnly[key] {
			return nil, apperr.Validation(fmt.Sprintf("Field %q cannot be updated", key))
		}
		cols = append(cols, field.DBName)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity T
		if err := r.scoped(tx).Where(pkEq(id)).Take(&entity).Error; err != nil {
			return err
		}
		if len(cols) == 0 {
			return nil
		}

		raw, err := json.Marshal(patch)
		if err != nil {
			return apperr.Validation("Invalid update payload")
		}
		if err := json.Unmarshal(raw, &entity); err != nil {
			return apperr.Validation("Invalid update payload: " + err.Error())
		}
		if err := validation.Struct(&entity); err != nil {
			return err
		}

		res := tx.Model(&entity).Select(cols).Updates(&entity)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, notFoundMessage)
	}

	return r.Get(ctx, id)
}

func (r *GormRepository[T, PT]) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity T
		if err := r.scoped(tx).Where(pkEq(id)).Take(&entity).Error; err != nil {
			return err
		}
		if err := runCascades(tx, r.res.Cascades, []uuid.UUID{id}); err != nil {
			return err
		}
		res := tx.Delete(&entity)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return apperr.FromStore(err, notFoundMessage)
}

func (r *GormRepository[T, PT]) scoped(db *gorm.DB) *gorm.DB {
	if r.res.Scope != nil {
		return r.res.Scope(db)
	}
	return db
}

func (r *GormRepository[T, PT]) preload(db *gorm.DB) *gorm.DB {
	for _, p := range r.res.Preloads {
		db = db.Preload(p)
	}
	return db
}

func (r *GormRepository[T, PT]) filterExpr(f query.Filter) (clause.Expression, error) {
	field, ok := r.fields[f.Field]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("Cannot filter by unknown field %q", f.Field))
	}

	values := make([]interface{}, 0, len(f.Values))
	for _, raw := range f.Values {
		v, err := convertValue(field, raw)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("Invalid value %q for %s", raw, f.Field))
		}
		values = append(values, v)
	}

	col := column(field.DBName)
	switch f.Op {
	case query.OpIn:
		return clause.IN{Column: col, Values: values}, nil
	case query.OpGte:
		return clause.Gte{Column: col, Value: values[0]}, nil
	case query.OpGt:
		return clause.Gt{Column: col, Value: values[0]}, nil
	case query.OpLte:
		return clause.Lte{Column: col, Value: values[0]}, nil
	case query.OpLt:
		return clause.Lt{Column: col, Value: values[0]}, nil
	default:
		return clause.Eq{Column: col, Value: values[0]}, nil
	}
}

func convertValue(field *schema.Field, raw string) (interface{}, error) {
	switch field.DataType {
	case schema.Bool:
		return strconv.ParseBool(raw)
	case schema.Int:
		return strconv.ParseInt(raw, 10, 64)
	case schema.Uint:
		return strconv.ParseUint(raw, 10, 64)
	case schema.Float:
		return strconv.ParseFloat(raw, 64)
	}
	if field.DataType == "uuid" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		return id, nil
	}
	return raw, nil
}

func runCascades(tx *gorm.DB, cascades []Cascade, parentIDs []uuid.UUID) error {
	for _, c := range cascades {
		if len(c.Then) > 0 {
			var childIDs []uuid.UUID
			if err := tx.Model(c.Model).Where(c.Column+" IN ?", parentIDs).Pluck("id", &childIDs).Error; err != nil {
				return fmt.Errorf("collecting dependents: %w", err)
			}
			if len(childIDs) > 0 {
				if err := runCascades(tx, c.Then, childIDs); err != nil {
					return err
				}
			}
		}

		if c.Nullify {
			if err := tx.Model(c.Model).Where(c.Column+" IN ?", parentIDs).Update(c.Column, nil).Error; err != nil {
				return fmt.Errorf("detaching dependents: %w", err)
			}
			continue
		}
		if err := tx.Where(c.Column+" IN ?", parentIDs).Delete(c.Model).Error; err != nil {
			return fmt.Errorf("deleting dependents: %w", err)
		}
	}
	return nil
}

func allRelationships(sch *schema.Schema) []*schema.Relationship {
	var rels []*schema.Relationship
	rels = append(rels, sch.Relationships.BelongsTo...)
	rels = append(rels, sch.Relationships.HasOne...)
	rels = append(rels, sch.Relationships.HasMany...)
	rels = append(rels, sch.Relationships.Many2Many...)
	return rels
}

func jsonName(f *schema.Field) string {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.DBName
	}
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.DBName
	}
	return name
}

func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

func pkEq(id uuid.UUID) clause.Expression {
	return clause.Eq{Column: column("id"), Value: id}
}
