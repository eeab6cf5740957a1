package preset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mahjong-ledger/internal/model"
	"mahjong-ledger/internal/scoring"
	appErr "mahjong-ledger/pkg/errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

type Service struct {
	db *gorm.DB
}

type ListResult struct {
	Items []model.RulePreset
	Total int64
}

type MutationParams struct {
	Name   string
	Remark string
	Status string
	Config scoring.Config
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(ctx context.Context, page, size int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.RulePreset{}).
		Count(&total).Error; err != nil {
		return nil, err
	}

	var items []model.RulePreset
	if total > 0 {
		offset := (page - 1) * size
		if err := s.db.WithContext(ctx).
			Model(&model.RulePreset{}).
			Order("id DESC").
			Limit(size).
			Offset(offset).
			Find(&items).Error; err != nil {
			return nil, err
		}
	}

	return &ListResult{Items: items, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.RulePreset, scoring.Config, error) {
	var p model.RulePreset
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scoring.Config{}, appErr.ErrPresetNotFound
		}
		return nil, scoring.Config{}, err
	}
	var cfg scoring.Config
	if err := json.Unmarshal(p.ConfigJSON, &cfg); err != nil {
		return nil, scoring.Config{}, fmt.Errorf("%w: %w", appErr.ErrInvalidPresetBody, err)
	}
	return &p, cfg, nil
}

func (s *Service) Create(ctx context.Context, params MutationParams) (*model.RulePreset, error) {
	raw, status, err := params.normalize()
	if err != nil {
		return nil, err
	}
	p := model.RulePreset{
		Name:       strings.TrimSpace(params.Name),
		Remark:     strings.TrimSpace(params.Remark),
		Status:     status,
		ConfigJSON: raw,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Update(ctx context.Context, id int64, params MutationParams) (*model.RulePreset, error) {
	raw, status, err := params.normalize()
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":        strings.TrimSpace(params.Name),
		"remark":      strings.TrimSpace(params.Remark),
		"status":      status,
		"config_json": raw,
	}

	result := s.db.WithContext(ctx).
		Model(&model.RulePreset{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, appErr.ErrPresetNotFound
	}

	var p model.RulePreset
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (p MutationParams) normalize() (datatypes.JSON, string, error) {
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if status == "" {
		status = StatusEnabled
	}
	if status != StatusEnabled && status != StatusDisabled {
		return nil, "", fmt.Errorf("%w: status must be enabled or disabled", appErr.ErrInvalidPresetBody)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, "", fmt.Errorf("%w: name is required", appErr.ErrInvalidPresetBody)
	}
	if err := p.Config.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %w", appErr.ErrInvalidPresetBody, err)
	}
	raw, err := json.Marshal(p.Config)
	if err != nil {
		return nil, "", err
	}
	return datatypes.JSON(raw), status, nil
}
