package request

import (
	"regexp"

	"classifieds/internal/domain"
	"classifieds/internal/service"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

type AdRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Category    string   `json:"category"`
	Location    string   `json:"location"`
	Images      []string `json:"images"`
}

func (req *AdRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.RuneLength(3, 120)),
		validation.Field(&req.Description, validation.RuneLength(0, 5000)),
		validation.Field(&req.Price, validation.Min(0.0)),
		validation.Field(&req.Currency, validation.Required, validation.Match(currencyPattern)),
		validation.Field(&req.Category, validation.Required, validation.RuneLength(1, 64)),
		validation.Field(&req.Location, validation.RuneLength(0, 120)),
		validation.Field(&req.Images, validation.Length(0, domain.MaxAdImages), validation.Each(validation.Required, is.URL)),
	)
}

func (req *AdRequest) Input() service.AdInput {
	return service.AdInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Category:    req.Category,
		Location:    req.Location,
		Images:      req.Images,
	}
}

type AdStatusRequest struct {
	Status string `json:"status"`
}

func (req *AdStatusRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Status, validation.Required, validation.In(
			string(domain.AdStatusPending),
			string(domain.AdStatusActive),
			string(domain.AdStatusSold),
			string(domain.AdStatusRejected),
			string(domain.AdStatusArchived),
		)),
	)
}
