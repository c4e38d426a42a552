package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntityRepository is the gorm backed store shared by every content collection.
type EntityRepository[T any] interface {
	WithTx(tx *gorm.DB) EntityRepository[T]
	Create(entity *T) error
	GetByID(id uint) (*T, error)
	GetAll(offset, limit int) ([]T, int64, error)
	Update(entity *T) error
	Delete(id uint) error
	SlugsWithPrefix(base string) ([]string, error)
	Count() (int64, error)
	CountWhere(query string, args ...interface{}) (int64, error)
}

type entityRepository[T any] struct {
	db    *gorm.DB
	order []clause.OrderByColumn
}

// NewEntityRepository orders listings by the given columns, then by id.
func NewEntityRepository[T any](db *gorm.DB, orderColumns ...string) EntityRepository[T] {
	order := make([]clause.OrderByColumn, 0, len(orderColumns)+1)
	for _, column := range orderColumns {
		order = append(order, clause.OrderByColumn{Column: clause.Column{Name: column}})
	}
	order = append(order, clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	return &entityRepository[T]{db: db, order: order}
}

func (r *entityRepository[T]) WithTx(tx *gorm.DB) EntityRepository[T] {
	return &entityRepository[T]{db: tx, order: r.order}
}

func (r *entityRepository[T]) Create(entity *T) error {
	return r.db.Create(entity).Error
}

func (r *entityRepository[T]) GetByID(id uint) (*T, error) {
	var entity T
	if err := r.db.First(&entity, id).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *entityRepository[T]) GetAll(offset, limit int) ([]T, int64, error) {
	var (
		items []T
		total int64
	)

	if err := r.db.Model(new(T)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.Clauses(clause.OrderBy{Columns: r.order})
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&items).Error
	return items, total, err
}

func (r *entityRepository[T]) Update(entity *T) error {
	return r.db.Save(entity).Error
}

func (r *entityRepository[T]) Delete(id uint) error {
	result := r.db.Delete(new(T), id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *entityRepository[T]) SlugsWithPrefix(base string) ([]string, error) {
	var slugs []string
	err := r.db.Model(new(T)).
		Where("slug = ? OR slug LIKE ?", base, base+"-%").
		Pluck("slug", &slugs).Error
	return slugs, err
}

func (r *entityRepository[T]) Count() (int64, error) {
	var count int64
	err := r.db.Model(new(T)).Count(&count).Error
	return count, err
}

func (r *entityRepository[T]) CountWhere(query string, args ...interface{}) (int64, error) {
	var count int64
	err := r.db.Model(new(T)).Where(query, args...).Count(&count).Error
	return count, err
}
