package app

import "fmt"

// DomainError is a client-visible failure. Status picks the HTTP code,
// Code is the stable machine-readable identifier from the API contract,
// and Details optionally carries a field-level breakdown.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
