package request

import (
	"classifieds/internal/domain"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	ModerationApprove = "approve"
	ModerationReject  = "reject"
	ModerationArchive = "archive"
)

var moderationTargets = map[string]domain.AdStatus{
	ModerationApprove: domain.AdStatusActive,
	ModerationReject:  domain.AdStatusRejected,
	ModerationArchive: domain.AdStatusArchived,
}

type UserStatusRequest struct {
	Status string `json:"status"`
}

func (req *UserStatusRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Status, validation.Required,
			validation.In(string(domain.UserStatusActive), string(domain.UserStatusBanned))),
	)
}

type UserRoleRequest struct {
	Role string `json:"role"`
}

func (req *UserRoleRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Role, validation.Required,
			validation.In(string(domain.RoleUser), string(domain.RoleAdmin))),
	)
}

type ModerateRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (req *ModerateRequest) Validate() error {
	reasonRules := []validation.Rule{validation.RuneLength(0, 500)}
	if req.Action == ModerationReject {
		reasonRules = append(reasonRules, validation.Required)
	}
	return validation.ValidateStruct(req,
		validation.Field(&req.Action, validation.Required, validation.In(ModerationApprove, ModerationReject, ModerationArchive)),
		validation.Field(&req.Reason, reasonRules...),
	)
}

// Target is the status the action moves the ad to. Call it after Validate.
func (req *ModerateRequest) Target() domain.AdStatus {
	return moderationTargets[req.Action]
}
