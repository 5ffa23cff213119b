package request

import (
	"classifieds/internal/domain"

	validation "github.com/go-ozzo/ozzo-validation"
)

type StartChatRequest struct {
	AdID int64 `json:"ad_id"`
}

func (req *StartChatRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.AdID, validation.Required, validation.Min(int64(1))),
	)
}

type MessageRequest struct {
	Body string `json:"body"`
}

func (req *MessageRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Body, validation.Required, validation.RuneLength(1, domain.MaxMessageLength)),
	)
}

type CheckoutRequest struct {
	AdID int64 `json:"ad_id"`
}

func (req *CheckoutRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.AdID, validation.Required, validation.Min(int64(1))),
	)
}
