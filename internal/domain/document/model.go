package document

import "time"

// Type classifies uploaded documents.
const (
	TypeSalarySlip    = "salary_slip"
	TypeBankStatement = "bank_statement"
	TypeAddressProof  = "address_proof"
	TypeIdentityProof = "identity_proof"
)

// Document is the stored metadata for one uploaded file.
type Document struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Type       string    `json:"document_type"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storage_key"`
	MimeType   string    `json:"mime"`
	Bytes      int64     `json:"bytes"`
	Sha256     string    `json:"sha256"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SalaryExtraction is the simulated OCR result for a salary slip.
type SalaryExtraction struct {
	MonthlySalary float64 `json:"monthly_salary"`
	Deductions    float64 `json:"deductions"`
	NetSalary     float64 `json:"net_salary"`
	Method        string  `json:"extraction_method"`
	Confidence    float64 `json:"confidence"`
}
