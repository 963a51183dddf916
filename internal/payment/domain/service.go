package domain

import (
	"context"
	"errors"
)

type Service interface {
	ListMethods(ctx context.Context, req ListMethodsRequest) ([]PaymentMethod, error)
	CreateMethod(ctx context.Context, req CreateMethodRequest) (*PaymentMethod, error)
}

type ListMethodsRequest struct {
	IncludeInactive bool `form:"includeInactive"`
}

type CreateMethodRequest struct {
	DisplayName       string `json:"displayName"`
	TargetAccountCode string `json:"targetAccountCode"`
}

var (
	ErrInvalidDisplayName   = errors.New("invalid_display_name")
	ErrInvalidTargetAccount = errors.New("invalid_target_account")
	ErrDuplicateMethod      = errors.New("duplicate_payment_method")
	ErrMethodNotFound       = errors.New("payment_method_not_found")
	ErrMethodInactive       = errors.New("payment_method_inactive")
	ErrInvalidAmount        = errors.New("invalid_payment_amount")
)
