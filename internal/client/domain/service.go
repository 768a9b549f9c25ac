package domain

import (
	"context"
	"errors"
)

type CreateClientRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Service interface {
	Create(context.Context, CreateClientRequest) (Client, error)
	GetByID(ctx context.Context, id string) (Client, error)
	Exists(ctx context.Context, id string) (bool, error)
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("client_not_found")
	ErrAlreadyExists = errors.New("client_already_exists")
)
