package models

import "github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"

// Recipient is one row of a campaign's input list: a normalized phone
// number plus whatever spreadsheet columns were captured alongside it.
// Fields backs the Send Pipeline's dynamic {header} placeholders.
type Recipient struct {
	Phone  string            `json:"phone"`
	Name   string            `json:"name,omitempty"`
	Amount float64           `json:"amount,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Validate reports apperrors.ErrInvalidRecipient when Phone is empty.
func (r Recipient) Validate() error {
	if r.Phone == "" {
		return apperrors.ErrInvalidRecipient
	}
	return nil
}
