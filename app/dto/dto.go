package dto

// APIResponse is the envelope every endpoint returns. Domain rejections carry
// a stable kebab-case code in Error (e.g. "overdraft", "old-revision") so
// clients can branch without parsing messages.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Error   any    `json:"error,omitempty" validate:"omitempty"`
}

// ErrorDetail carries the machine-readable error code plus optional
// diagnostics, such as the evaluated rate rule on rate failures
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}
