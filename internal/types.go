package internal

import "time"

// RawRecord is one stored document as written by ingestion. Keys follow the
// stored naming convention and any of them may be missing.
type RawRecord map[string]any

type Item struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Invoice is the fixed-shape projection of a RawRecord served to the dashboard.
type Invoice struct {
	ID             string  `json:"id"`
	InvoiceNumber  string  `json:"invoiceNumber"`
	OnedriveFileID string  `json:"onedriveFileId"`
	FileName       *string `json:"fileName,omitempty"`

	BilledTo       string  `json:"billedTo"`
	CompanyName    string  `json:"companyName"`
	CompanyAddress string  `json:"companyAddress"`
	RecipientName  string  `json:"recipientName"`
	CompanyEmail   *string `json:"companyEmail,omitempty"`
	CompanyPhone   *string `json:"companyPhone,omitempty"`
	BankName       *string `json:"bankName,omitempty"`
	AccountNumber  *string `json:"accountNumber,omitempty"`
	SwiftCode      *string `json:"swiftCode,omitempty"`

	DateOfIssue string  `json:"dateOfIssue"`
	DueDate     *string `json:"dueDate,omitempty"`

	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	TaxRate  float64 `json:"taxRate"`
	Total    float64 `json:"total"`

	Items []Item `json:"items"`

	StaffingPercentage float64 `json:"staffingPercentage"`
	ProjectPercentage  float64 `json:"projectPercentage"`
	SoftwarePercentage float64 `json:"softwarePercentage"`

	PDFURL *string `json:"pdfUrl,omitempty"`
}

type ErrorStatus string

const (
	ErrorPending  ErrorStatus = "pending"
	ErrorResolved ErrorStatus = "resolved"
)

// ErrorInvoice is a document that failed automated extraction and waits for
// manual correction. RawData is kept as-is until a user edits it.
type ErrorInvoice struct {
	ID             string      `json:"id"`
	FileName       string      `json:"fileName"`
	OnedriveFileID string      `json:"onedriveFileId"`
	PDFPath        string      `json:"-"`
	PDFURL         string      `json:"pdfUrl,omitempty"`
	ErrorMessage   string      `json:"errorMessage"`
	RawData        RawRecord   `json:"rawData"`
	Status         ErrorStatus `json:"status"`
	InvoiceID      *string     `json:"invoiceId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EmailRow struct {
	ID         string
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}
