package models

import (
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"github.com/shopspring/decimal"
)

// Delivery is the delivery-order read model. The batch import only reads it.
type Delivery struct {
	ID           int             `gorm:"primary_key" json:"id"`
	OrderNumber  string          `gorm:"size:50;index" json:"order_number"`
	DeliveryDate time.Time       `gorm:"type:date;index;not null" json:"delivery_date"`
	DeliveryTime *string         `gorm:"size:8" json:"delivery_time"`
	ClientName   string          `gorm:"size:255;not null" json:"client_name"`
	FormulaCode  string          `gorm:"size:50" json:"formula_code"`
	Volume       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"volume"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d Delivery) toRecord() reconcile.DeliveryRecord {
	rec := reconcile.DeliveryRecord{
		ID:          d.ID,
		ClientName:  d.ClientName,
		FormulaCode: d.FormulaCode,
		Volume:      d.Volume,
	}
	if d.DeliveryTime != nil {
		rec.Time = *d.DeliveryTime
	}
	return rec
}
