package common

import "errors"

// Общие ошибки слоя хранилища.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
)
