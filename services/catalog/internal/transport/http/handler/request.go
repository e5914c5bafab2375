package handler

import (
	"encoding/base64"
	"fmt"

	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"github.com/sakashimaa/marketplace/services/catalog/internal/service"
	"github.com/shopspring/decimal"
)

type ImageInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"omitempty,max=100"`
	Data        string `json:"data" validate:"required,base64"`
}

type AttributesInput struct {
	Code         string          `json:"code" validate:"max=64"`
	Name         string          `json:"name" validate:"required,min=1,max=200"`
	Type         string          `json:"type" validate:"max=64"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	Size         string          `json:"size" validate:"max=64"`
	Color        string          `json:"color" validate:"max=64"`
	Weight       string          `json:"weight" validate:"max=64"`
	Image        string          `json:"image" validate:"max=4000"`
}

type ProductRequest struct {
	AttributesInput
	Images []ImageInput `json:"images" validate:"omitempty,max=10,dive"`
}

type CreateProductRequest struct {
	ProductRequest
	Related []ProductRequest `json:"related" validate:"omitempty,max=50,dive"`
}

type AddRelatedRequest struct {
	Related []ProductRequest `json:"related" validate:"required,min=1,max=50,dive"`
}

type StageEditRequest struct {
	AttributesInput
	NewImages    []ImageInput `json:"new_images" validate:"omitempty,max=10,dive"`
	RemoveImages []string     `json:"remove_images" validate:"omitempty,dive,url"`
}

type DecideRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

type DeleteProductsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

func (a AttributesInput) toDomain() (domain.ProductAttributes, error) {
	if a.DefaultPrice.IsNegative() {
		return domain.ProductAttributes{}, fmt.Errorf("default_price must not be negative")
	}

	return domain.ProductAttributes{
		Code:         a.Code,
		Name:         a.Name,
		Type:         a.Type,
		DefaultPrice: a.DefaultPrice.Round(2),
		Size:         a.Size,
		Color:        a.Color,
		Weight:       a.Weight,
		Image:        a.Image,
	}, nil
}

func toImageFiles(in []ImageInput) ([]domain.ImageFile, error) {
	files := make([]domain.ImageFile, 0, len(in))
	for _, img := range in {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.Name, err)
		}
		files = append(files, domain.ImageFile{Name: img.Name, ContentType: img.ContentType, Data: data})
	}
	return files, nil
}

func (r ProductRequest) toInput() (service.ProductInput, error) {
	attrs, err := r.AttributesInput.toDomain()
	if err != nil {
		return service.ProductInput{}, err
	}

	images, err := toImageFiles(r.Images)
	if err != nil {
		return service.ProductInput{}, err
	}

	return service.ProductInput{Attributes: attrs, Images: images}, nil
}

func toInputs(reqs []ProductRequest) ([]service.ProductInput, error) {
	out := make([]service.ProductInput, 0, len(reqs))
	for _, r := range reqs {
		in, err := r.toInput()
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func (r StageEditRequest) toInput() (service.StageEditInput, error) {
	attrs, err := r.AttributesInput.toDomain()
	if err != nil {
		return service.StageEditInput{}, err
	}

	images, err := toImageFiles(r.NewImages)
	if err != nil {
		return service.StageEditInput{}, err
	}

	return service.StageEditInput{Attributes: attrs, NewImages: images, RemoveImages: r.RemoveImages}, nil
}
