package repository

import (
	"context"
	"fmt"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"

	"gorm.io/gorm"
)

type coefficientRow struct {
	ID         uint    `gorm:"primaryKey"`
	Code       string  `gorm:"size:32;not null;uniqueIndex:idx_coefficient_code_side"`
	Side       string  `gorm:"size:8;not null;uniqueIndex:idx_coefficient_code_side"`
	Name       string  `gorm:"size:128"`
	Multiplier float64 `gorm:"not null;default:1"`
	Addition   float64 `gorm:"not null;default:0"`
	Visible    bool    `gorm:"not null;default:true"`
	SortOrder  int     `gorm:"not null;default:0"`
	Category   string  `gorm:"size:64"`
	UpdatedAt  time.Time
}

func (coefficientRow) TableName() string { return "coefficients" }

type derivedRow struct {
	ID             uint    `gorm:"primaryKey"`
	Code           string  `gorm:"size:32;not null;uniqueIndex"`
	Name           string  `gorm:"size:128;not null"`
	Category       string  `gorm:"size:64"`
	BuySourceCode  string  `gorm:"size:32;not null"`
	BuySourceSide  string  `gorm:"size:8;not null"`
	BuyMultiplier  float64 `gorm:"not null;default:1"`
	BuyAddition    float64 `gorm:"not null;default:0"`
	SellSourceCode string  `gorm:"size:32;not null"`
	SellSourceSide string  `gorm:"size:8;not null"`
	SellMultiplier float64 `gorm:"not null;default:1"`
	SellAddition   float64 `gorm:"not null;default:0"`
	SortOrder      int     `gorm:"not null;default:0;index"`
	Visible        bool    `gorm:"not null;default:true;index"`
	UpdatedAt      time.Time
}

func (derivedRow) TableName() string { return "derived_instruments" }

// CatalogRepository reads coefficients and derived definitions from Postgres.
type CatalogRepository struct {
	db *gorm.DB
}

var (
	_ drepo.CoefficientRepository = (*CatalogRepository)(nil)
	_ drepo.DerivedRepository     = (*CatalogRepository)(nil)
)

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListCoefficients(ctx context.Context) ([]models.Coefficient, error) {
	var rows []coefficientRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list coefficients: %w", err)
	}
	out := make([]models.Coefficient, 0, len(rows))
	for _, row := range rows {
		c, err := row.toModel()
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *CatalogRepository) ListVisibleDerived(ctx context.Context) ([]models.DerivedDefinition, error) {
	var rows []derivedRow
	err := r.db.WithContext(ctx).
		Where("visible = ?", true).
		Order("sort_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list derived: %w", err)
	}
	out := make([]models.DerivedDefinition, 0, len(rows))
	for _, row := range rows {
		d, err := row.toModel()
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (row coefficientRow) toModel() (models.Coefficient, error) {
	side, err := models.ParseSide(row.Side)
	if err != nil {
		return models.Coefficient{}, err
	}
	return models.Coefficient{
		Code:       row.Code,
		Side:       side,
		Multiplier: row.Multiplier,
		Addition:   row.Addition,
		Name:       row.Name,
		Visible:    row.Visible,
		Order:      row.SortOrder,
		Category:   row.Category,
	}, nil
}

func (row derivedRow) toModel() (models.DerivedDefinition, error) {
	buySide, err := models.ParseSide(row.BuySourceSide)
	if err != nil {
		return models.DerivedDefinition{}, fmt.Errorf("derived %s buy leg: %w", row.Code, err)
	}
	sellSide, err := models.ParseSide(row.SellSourceSide)
	if err != nil {
		return models.DerivedDefinition{}, fmt.Errorf("derived %s sell leg: %w", row.Code, err)
	}
	return models.DerivedDefinition{
		Code:     row.Code,
		Name:     row.Name,
		Category: row.Category,
		BuyLeg: models.Leg{
			SourceCode: row.BuySourceCode,
			SourceSide: buySide,
			Multiplier: row.BuyMultiplier,
			Addition:   row.BuyAddition,
		},
		SellLeg: models.Leg{
			SourceCode: row.SellSourceCode,
			SourceSide: sellSide,
			Multiplier: row.SellMultiplier,
			Addition:   row.SellAddition,
		},
		Order:   row.SortOrder,
		Visible: row.Visible,
	}, nil
}
