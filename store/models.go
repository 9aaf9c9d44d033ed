package store

import (
	"time"
)

// DataType classifies the methodology behind a dataset.
type DataType string

const (
	DataTypeExperimental  DataType = "experimental"
	DataTypeObservational DataType = "observational"
	DataTypeComputational DataType = "computational"
	DataTypeSurvey        DataType = "survey"
)

// Valid reports whether d is one of the known dataset classes.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeExperimental, DataTypeObservational, DataTypeComputational, DataTypeSurvey:
		return true
	}
	return false
}

// Metadata describes one stored dataset. FileHash and SizeBytes are filled in
// by the store; everything else is declared by the uploader.
type Metadata struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DataType     DataType  `json:"data_type"`
	Keywords     []string  `json:"keywords"`
	Authors      []string  `json:"authors"`
	CreationDate time.Time `json:"creation_date"`
	License      string    `json:"license"`
	FileHash     string    `json:"file_hash"`
	SizeBytes    int64     `json:"size_bytes"`
	PriceTokens  float64   `json:"price_tokens"`
}

// Transaction is a completed marketplace transfer. Records are append-only:
// once written to the journal they are never edited.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	SellerAddress string    `json:"seller_address"`
	BuyerAddress  string    `json:"buyer_address"`
	DatasetID     string    `json:"dataset_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
}
